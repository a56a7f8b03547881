// vrf-oracle answers randomness requests published by raffle-server in
// oracle.mode nats. Each request is held for its confirmation count times
// -block-time before crypto-random words are published.
package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"raffle-backend/internal/clients"
	"raffle-backend/internal/config"
	"raffle-backend/internal/dto"

	"github.com/nats-io/nats.go"
)

var maxUint256 = new(big.Int).Lsh(big.NewInt(1), 256)

func main() {
	configPath := flag.String("config", "", "path to config file")
	blockTime := flag.Duration("block-time", time.Second, "simulated time per request confirmation")
	oracleName := flag.String("name", "vrf-oracle", "oracle name reported in fulfillments")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.AppConfig
	if cfg.NATS.URL == "" {
		log.Fatalf("nats.url is required")
	}

	natsClient, err := clients.NewNATSClient(cfg.NATS, "raffle-vrf",
		[]string{cfg.NATS.VRFRequests, cfg.NATS.VRFFulfillments})
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer natsClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = natsClient.Subscribe(cfg.NATS.VRFRequests, func(msg *nats.Msg) {
		var req dto.VRFRequestMessage
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			log.Printf("❌ Malformed VRF request: %v", err)
			return
		}
		go fulfil(ctx, natsClient, cfg.NATS.VRFFulfillments, *oracleName, req,
			time.Duration(req.RequestConfirmations)*(*blockTime))
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	log.Printf("🎲 VRF oracle listening on %s, answering on %s", cfg.NATS.VRFRequests, cfg.NATS.VRFFulfillments)
	<-ctx.Done()
	log.Println("🛑 VRF oracle stopped")
}

func fulfil(ctx context.Context, pub clients.Publisher, subject, oracle string, req dto.VRFRequestMessage, delay time.Duration) {
	log.Printf("📥 Request %s from %s: %d word(s), %d confirmation(s)",
		req.RequestID, req.Sender, req.NumWords, req.RequestConfirmations)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}

	words := make([]string, req.NumWords)
	for i := range words {
		word, err := rand.Int(rand.Reader, maxUint256)
		if err != nil {
			log.Printf("❌ Failed to generate randomness for %s: %v", req.RequestID, err)
			return
		}
		words[i] = word.String()
	}

	msg := dto.VRFFulfillmentMessage{
		RequestID:   req.RequestID,
		Sender:      req.Sender,
		RandomWords: words,
		Oracle:      oracle,
		FulfilledAt: time.Now().UTC(),
	}
	if err := clients.PublishJSON(pub, subject, msg); err != nil {
		log.Printf("❌ Failed to publish fulfillment for %s: %v", req.RequestID, err)
		return
	}
	log.Printf("📤 Fulfilled request %s", req.RequestID)
}
