package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"advisory.org/internal/auth"
	"advisory.org/internal/consult"
	"advisory.org/internal/consult/remote"
)

func main() {
	addr := os.Getenv("ADVISORY_GRPC_TARGET")
	if addr == "" {
		addr = "localhost:9090"
	}
	identity := auth.Identity(os.Getenv("ADVISORY_SMOKE_IDENTITY"))
	if identity == "" {
		identity = "smoke-owner"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	client, err := remote.Dial(ctx, addr)
	cancel()
	if err != nil {
		log.Fatalf("dial registry at %s: %v", addr, err)
	}
	defer client.Close()

	token, err := auth.GenerateToken(identity, 5*time.Minute)
	if err != nil {
		log.Fatalf("token: %v (set ADVISORY_AUTH_SECRET to the server's secret)", err)
	}
	svc := remote.NewService(client)

	ctxOp, cancelOp := remote.WithTimeout(context.Background(), 5*time.Second)
	defer cancelOp()
	ctxOp = auth.ContextWithToken(ctxOp, token)

	adv, err := svc.AddAdvisor(ctxOp, consult.AdvisorPayload{Name: "Amy", Credentials: "Bar#123"})
	if err != nil {
		log.Fatalf("add advisor: %v", err)
	}
	c, err := svc.InitiateConsultation(ctxOp, consult.ConsultationPayload{
		AdvisorID:   adv.ID,
		UserID:      7,
		ClientName:  "Bo",
		ClientEmail: "bo@x.com",
		Details:     "Need help",
	})
	if err != nil {
		log.Fatalf("initiate consultation: %v", err)
	}
	closedAt := uint64(time.Now().UnixNano())
	if _, err := svc.CloseConsultation(ctxOp, c.ID, closedAt); err != nil {
		log.Fatalf("close consultation: %v", err)
	}

	got, err := svc.GetConsultation(ctxOp, c.ID)
	if err != nil {
		log.Fatalf("get consultation: %v", err)
	}
	if got.ClosedAt == nil || *got.ClosedAt != closedAt {
		log.Fatalf("unexpected closed_at: %v", got.ClosedAt)
	}
	if got.AdvisorID != adv.ID || got.ClientName != "Bo" {
		log.Fatalf("unexpected consultation: %+v", got)
	}
	events, err := svc.TrackConsultationTimeline(ctxOp, c.ID)
	if err != nil {
		log.Fatalf("timeline: %v", err)
	}
	if len(events) < 2 {
		log.Fatalf("expected at least two timeline events, got %d", len(events))
	}

	fmt.Printf("registry smoke test passed: advisor=%d consultation=%d events=%d\n", adv.ID, c.ID, len(events))
}
