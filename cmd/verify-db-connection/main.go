package main

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"raffle-backend/internal/config"
	"raffle-backend/internal/models"

	_ "github.com/lib/pq"
)

func main() {
	fmt.Println("🔍 Verifying raffle history database...")
	fmt.Println(strings.Repeat("=", 60))

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dsn := config.AppConfig.Database.DSN
	if dsn == "" {
		log.Fatalf("database.dsn (or DATABASE_DSN) is not set")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to reach database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	tables := []string{
		models.RaffleEntry{}.TableName(),
		models.RandomnessRequestRecord{}.TableName(),
		models.RaffleSettlement{}.TableName(),
	}
	missing := 0
	for _, table := range tables {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to inspect %s: %v", table, err)
		}
		if !exists {
			fmt.Printf("❌ %s does not exist (raffle-server migrates it on start)\n", table)
			missing++
			continue
		}

		var rows int64
		// table names come from the models, not from input
		if err := sqlDB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&rows); err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
		fmt.Printf("✅ %s: %d row(s)\n", table, rows)
	}

	if missing > 0 {
		fmt.Printf("\n⚠️ %d table(s) missing\n", missing)
		return
	}
	fmt.Println("\n✅ Database is ready for raffle history")
}
