// +build ignore

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// Seeds one demo ad asset and two auto-scale rules against it, for local
// development and API poking. Safe to re-run: rows are keyed by fixed names
// and skipped when present.
//
// Usage: DATABASE_URL=postgres://... go run scripts/seed_demo_rules.go <user_id>

const demoAssetName = "demo-fb-adset-001"

const scaleUpConfig = `{
  "conditions_logic": "and_or_and",
  "condition_blocks": [
    {
      "block_name": "scale winners",
      "condition_groups": [
        {"conditions": [
          {"metric": "roas", "operator": ">", "value": 2.0, "time_range": "today"},
          {"metric": "spend", "operator": ">", "value": 20, "time_range": "today"}
        ]}
      ],
      "actions": [
        {"action_type": "increase_budget", "change_by": 20, "value_suffix": "percent", "until_limit": 500, "time_period": "every_6h"}
      ]
    }
  ]
}`

const cutLosersConfig = `{
  "conditions_logic": "and_or_and",
  "condition_blocks": [
    {
      "block_name": "pause bleeders",
      "condition_groups": [
        {"conditions": [
          {"metric": "roas", "operator": "<", "value": 0.8, "time_range": "last_3d"},
          {"metric": "spend", "operator": ">", "value": 100, "time_range": "last_3d"}
        ]}
      ],
      "actions": [
        {"action_type": "pause"}
      ]
    },
    {
      "block_name": "trim marginal",
      "condition_groups": [
        {"conditions": [
          {"metric": "roas", "operator": "<", "value": 1.2, "time_range": "last_3d"}
        ]}
      ],
      "actions": [
        {"action_type": "decrease_budget", "change_by": 25, "value_suffix": "percent", "until_limit": 10, "time_period": "daily"}
      ]
    }
  ]
}`

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: seed_demo_rules.go <user_id>")
	}
	userID := os.Args[1]

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	var assetID string
	err = db.QueryRowContext(ctx,
		`SELECT id FROM ad_assets WHERE user_id = $1 AND ad_asset_id = $2`,
		userID, demoAssetName).Scan(&assetID)
	if err == sql.ErrNoRows {
		assetID = uuid.New().String()
		_, err = db.ExecContext(ctx, `
			INSERT INTO ad_assets (id, user_id, ad_asset_id, ad_asset_type, ad_platform,
			                       product_id, current_budget, timezone, is_active)
			VALUES ($1, $2, $3, 'adset', 'facebook', $4, 50.00, 'America/New_York', true)
		`, assetID, userID, demoAssetName, uuid.New().String())
		if err != nil {
			log.Fatalf("Failed to insert demo asset: %v", err)
		}
		fmt.Printf("Created demo asset %s (%s)\n", demoAssetName, assetID)
	} else if err != nil {
		log.Fatalf("Failed to look up demo asset: %v", err)
	} else {
		fmt.Printf("Demo asset %s already present (%s)\n", demoAssetName, assetID)
	}

	rules := []struct {
		name   string
		config string
	}{
		{"Demo: scale winners", scaleUpConfig},
		{"Demo: cut losers", cutLosersConfig},
	}
	for _, r := range rules {
		var exists bool
		if err := db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM ad_auto_scale WHERE user_id = $1 AND name = $2)`,
			userID, r.name).Scan(&exists); err != nil {
			log.Fatalf("Failed to check rule %q: %v", r.name, err)
		}
		if exists {
			fmt.Printf("Rule %q already present, skipping\n", r.name)
			continue
		}
		_, err := db.ExecContext(ctx, `
			INSERT INTO ad_auto_scale (id, user_id, name, ad_assets_id, is_active, status, config)
			VALUES ($1, $2, $3, $4, true, 1, $5)
		`, uuid.New().String(), userID, r.name, assetID, []byte(r.config))
		if err != nil {
			log.Fatalf("Failed to insert rule %q: %v", r.name, err)
		}
		fmt.Printf("Created rule %q\n", r.name)
	}

	fmt.Println("Done.")
}
