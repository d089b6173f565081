package cmd

import (
	"fmt"
	"os"

	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/logger"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// catalog - seed 파일 형식
//
//	assets:
//	  - id: A001
//	    tag: PMP-101
//	    criticality: critical
//	parts:
//	  - id: BRG-6308
//	    part_number: 6308-2RS
//	    quantity_on_hand: 8
type catalog struct {
	Assets []model.OnboardAssetRequest `yaml:"assets"`
	Parts  []model.CreatePartRequest   `yaml:"parts"`
}

func loadCatalog(path string) (*catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var c catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &c, nil
}

func runSeed(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	c, err := loadCatalog(seedFile)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var onboarded, registered int
	for _, req := range c.Assets {
		if _, err := a.assets.Onboard(ctx, req, "seed"); err != nil {
			if service.ErrorKind(err) == "conflict" {
				log.Info("asset already exists, skipping", zap.String("asset_id", req.ID))
				continue
			}
			return err
		}
		onboarded++
	}
	for _, req := range c.Parts {
		if _, err := a.ledger.CreatePart(ctx, req); err != nil {
			if service.ErrorKind(err) == "conflict" {
				log.Info("part already exists, skipping", zap.String("part_id", req.ID))
				continue
			}
			return err
		}
		registered++
	}
	log.Info("seed complete",
		zap.String("file", seedFile),
		zap.Int("assets", onboarded),
		zap.Int("parts", registered))
	return nil
}
