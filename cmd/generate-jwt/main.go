package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"raffle-backend/internal/handlers"
)

func main() {
	username := flag.String("user", "admin", "admin username")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	hashPassword := flag.String("hash-password", "", "print a bcrypt hash for ADMIN_PASSWORD_HASH and exit")
	flag.Parse()

	if *hashPassword != "" {
		hash, err := handlers.HashPassword(*hashPassword)
		if err != nil {
			fmt.Printf("Error hashing password: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ADMIN_PASSWORD_HASH='%s'\n", hash)
		return
	}

	// ADMIN_JWT_SECRET, same default as the server
	tokenString, err := handlers.GenerateAdminJWTToken(handlers.AdminJWTSecret(), *username, *ttl)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("Admin JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("  Username: %s\n", *username)
	fmt.Printf("  Expires: %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/admin/vrf/pending\n", tokenString)
	fmt.Println()
}
