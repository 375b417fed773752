// Command backfill restores the permanence guarantee for documents that were
// handed out on the degraded temporary-URL fallback. For each request whose
// latest document URL is non-permanent it re-persists the content through
// the storage gateway, appending a fresh document row so the most-recent-wins
// rule makes the permanent copy authoritative. Non-permanent rows already
// superseded by a newer sibling are skipped: repairing those would insert a
// fresh row and put stale content back on top. With -audit it also downloads
// each permanent artifact and verifies it still parses as a PDF.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
	"golang.org/x/sync/errgroup"

	"caredocs/internal/config"
	"caredocs/internal/util"
	"caredocs/pkg/domain"
	"caredocs/pkg/storage"
	"caredocs/pkg/store"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	audit := flag.Bool("audit", false, "verify permanent artifacts parse as PDFs")
	workers := flag.Int("workers", 4, "concurrent documents to process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.InitLogger(cfg.LogLevel)

	dataStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init postgres store: %v", err)
	}
	objects, err := storage.NewMinioStore(cfg.StorageEndpoint, cfg.StorageAccessKey, cfg.StorageSecretKey, cfg.StorageBucket, cfg.StorageUseSSL)
	if err != nil {
		log.Fatalf("failed to init object store: %v", err)
	}
	gateway, err := storage.NewGateway(storage.GatewayConfig{
		Objects:       objects,
		PublicBaseURL: cfg.StoragePublicBaseURL,
		Bucket:        cfg.StorageBucket,
	})
	if err != nil {
		log.Fatalf("failed to init storage gateway: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	docs, err := dataStore.ListDocuments(ctx)
	if err != nil {
		log.Fatalf("failed to list documents: %v", err)
	}

	var repaired, skipped, failed, audited int
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	results := make(chan string, len(docs))
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			results <- processDocument(gctx, dataStore, gateway, doc, *audit)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("backfill aborted: %v", err)
	}
	close(results)
	for r := range results {
		switch r {
		case "repaired":
			repaired++
		case "skipped":
			skipped++
		case "audited":
			audited++
		case "failed":
			failed++
		}
	}
	slog.Info("backfill complete", "documents", len(docs), "repaired", repaired, "skipped", skipped, "audited", audited, "failed", failed)
	if failed > 0 {
		log.Fatalf("backfill finished with %d failures", failed)
	}
}

// processDocument decides and performs the action for one document row,
// returning the outcome tally key. Only a request's latest document is ever
// repaired; a superseded non-permanent row stays untouched, since appending
// a repair of it would outrank the newer document under most-recent-wins.
func processDocument(ctx context.Context, dataStore store.Store, gateway *storage.Gateway, doc domain.Document, audit bool) string {
	if gateway.IsPermanentURL(doc.PDFURL) {
		if !audit {
			return "ok"
		}
		if err := auditArtifact(ctx, doc.PDFURL); err != nil {
			slog.Error("artifact audit failed", "document_id", doc.ID, "url", doc.PDFURL, "err", err)
			return "failed"
		}
		return "audited"
	}
	latest, found, err := dataStore.LatestDocument(ctx, doc.RequestID)
	if err != nil {
		slog.Error("latest document lookup failed", "request_id", doc.RequestID, "err", err)
		return "failed"
	}
	if found && latest.ID != doc.ID {
		return "skipped"
	}
	if err := repair(ctx, dataStore, gateway, doc); err != nil {
		slog.Error("backfill failed", "document_id", doc.ID, "request_id", doc.RequestID, "err", err)
		return "failed"
	}
	return "repaired"
}

// repair re-persists a degraded document and appends a new row carrying the
// permanent URL. The old row stays; documents are never mutated or deleted.
func repair(ctx context.Context, dataStore store.Store, gateway *storage.Gateway, doc domain.Document) error {
	up, err := gateway.UploadFromTemporaryURL(ctx, doc.PDFURL, doc.RequestID, doc.Type, doc.Subtype)
	if err != nil {
		return fmt.Errorf("re-persist %s: %w", doc.PDFURL, err)
	}
	next := domain.Document{
		ID:        uuid.NewString(),
		RequestID: doc.RequestID,
		Type:      doc.Type,
		Subtype:   doc.Subtype,
		PDFURL:    up.PermanentURL,
		Payload:   doc.Payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := dataStore.SaveDocument(ctx, next); err != nil {
		return fmt.Errorf("insert repaired document row: %w", err)
	}
	slog.Info("document repaired", "request_id", doc.RequestID, "old_url", doc.PDFURL, "new_url", up.PermanentURL)
	return nil
}

// auditArtifact downloads a permanent artifact and checks it parses as a PDF
// with at least one page.
func auditArtifact(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download artifact: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact fetch returned status %d", resp.StatusCode)
	}
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return fmt.Errorf("read artifact: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return fmt.Errorf("parse artifact: %w", err)
	}
	if reader.NumPage() < 1 {
		return fmt.Errorf("artifact has no pages")
	}
	return nil
}
