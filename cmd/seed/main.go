package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"kidsbook/internal/coupon"
)

// seed generates a sample coupon campaign file for local development.
// The output is gzipped JSON lines, the format the importer consumes.
func main() {
	dataDir := "data/campaigns"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Hour)
	defs := []coupon.Definition{
		{
			Code:             "WELCOME10",
			Title:            "10% off your first booking",
			DiscountType:     "PERCENTAGE",
			Value:            10,
			MinAmountCents:   2000,
			MaxDiscountCents: 3000,
			TotalQuantity:    1000,
			LimitPerUser:     1,
			ValidFrom:        now,
			ValidUntil:       now.AddDate(0, 3, 0),
			Enabled:          true,
		},
		{
			Code:             "SUMMERCAMP",
			Title:            "Summer camp season discount",
			DiscountType:     "PERCENTAGE",
			Value:            15,
			MinAmountCents:   5000,
			MaxDiscountCents: 10000,
			TotalQuantity:    500,
			LimitPerUser:     2,
			ValidFrom:        now,
			ValidUntil:       now.AddDate(0, 2, 0),
			Enabled:          true,
		},
		{
			Code:           "FLAT5",
			Title:          "5 off any activity",
			DiscountType:   "FIXED",
			Value:          500,
			MinAmountCents: 1000,
			TotalQuantity:  2000,
			LimitPerUser:   3,
			ValidFrom:      now,
			ValidUntil:     now.AddDate(0, 1, 0),
			Enabled:        true,
		},
	}

	filePath := filepath.Join(dataDir, "sample_campaign.gz")
	if err := writeCampaignFile(filePath, defs); err != nil {
		log.Fatalf("Failed to create %s: %v", filePath, err)
	}

	fmt.Printf("Created %s with %d coupon definitions\n", filePath, len(defs))
	fmt.Println("Apply it with: importer -file sample_campaign.gz")
}

func writeCampaignFile(filePath string, defs []coupon.Definition) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	enc := json.NewEncoder(gzipWriter)
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("definition %s: %w", def.Code, err)
		}
		if err := enc.Encode(def); err != nil {
			return fmt.Errorf("failed to encode definition: %w", err)
		}
	}
	return nil
}
