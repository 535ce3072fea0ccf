//go:build integration

package pncp

import (
	"context"
	"testing"
	"time"

	"github.com/licitaradar/licitaradar/internal/config"
)

func TestFetchPage_RealPortal(t *testing.T) {
	c := New(config.PNCPConfig{
		BaseURL:           "https://pncp.gov.br/api/consulta",
		FilesBaseURL:      "https://pncp.gov.br/pncp-api",
		PageSize:          10,
		Modalities:        "6",
		RequestsPerSecond: 1,
		RetryAttempts:     2,
		RetryDelay:        2 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	// A weekday well in the past always has electronic auctions.
	date := time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC)
	recs, err := c.FetchPage(ctx, date, 6, 1)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(recs) == 0 {
		t.Skip("portal returned no records for the sample date")
	}
	for _, r := range recs {
		if r.ControlNumber == "" || r.EntityCNPJ == "" {
			t.Errorf("incomplete record: %+v", r)
		}
	}
}
