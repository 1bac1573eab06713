package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/levenlabs/go-lflag"
	"github.com/voltledger/voltledger/pkg/log"
	"github.com/voltledger/voltledger/pkg/report"
	"github.com/voltledger/voltledger/pkg/storage"
	"github.com/voltledger/voltledger/pkg/types"
)

type seedDevice struct {
	input  report.DeviceInput
	baseKW float64
	// peakHours get double load
	peakHours [2]int
	// resetAfter simulates a meter reset this far into the history
	resetAfter time.Duration
}

var seedDevices = []seedDevice{
	{
		input:     report.DeviceInput{Name: "Air Conditioner", Room: "Bedroom", DeviceType: "ac", IsControllable: true},
		baseKW:    0.9,
		peakHours: [2]int{13, 23},
	},
	{
		input:      report.DeviceInput{Name: "Refrigerator", Room: "Kitchen", DeviceType: "fridge"},
		baseKW:     0.15,
		peakHours:  [2]int{18, 21},
		resetAfter: 45 * 24 * time.Hour,
	},
	{
		input:     report.DeviceInput{Name: "Water Pump", Room: "Roof", DeviceType: "pump", IsControllable: true},
		baseKW:    0.25,
		peakHours: [2]int{6, 8},
	},
}

func main() {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	}
	s := storage.Configured()
	svc := report.Configured(s, nil)
	ownerID := lflag.String("seed-owner-id", "dev", "Owner to create the demo devices for")
	history := lflag.Duration("seed-history", 210*24*time.Hour, "How far back to generate readings")
	interval := lflag.Duration("seed-interval", 30*time.Minute, "Time between generated readings")
	withSolar := lflag.Bool("seed-solar", true, "Also enable a 5 kW solar installation in Karachi")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data", slog.String("ownerID", *ownerID), slog.Duration("history", *history))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	now := time.Now()
	start := now.Add(-*history).Truncate(*interval)

	for _, sd := range seedDevices {
		created, err := svc.CreateDevice(ctx, *ownerID, sd.input)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to create device", slog.String("name", sd.input.Name), slog.Any("error", err))
			os.Exit(1)
		}
		fmt.Printf("%s\t%s\ttoken=%s\n", created.ID, created.Name, created.Token)

		var energy float64
		var count int
		for t := start; t.Before(now); t = t.Add(*interval) {
			if sd.resetAfter > 0 && t.Sub(start) >= sd.resetAfter && t.Add(-*interval).Sub(start) < sd.resetAfter {
				energy = 0
			}
			kw := loadKW(sd, t.In(svc.Location()).Hour(), rng)
			energy += kw * interval.Hours()
			voltage := 220 + rng.Float64()*15
			r := types.Reading{
				DeviceID:  created.ID,
				Timestamp: t.UTC(),
				Voltage:   math.Round(voltage*10) / 10,
				Current:   math.Round(kw*1000/voltage*100) / 100,
				Power:     math.Round(kw * 1000),
				EnergyKWH: math.Round(energy*1000) / 1000,
			}
			if err := s.InsertReading(ctx, r); err != nil {
				log.Ctx(ctx).ErrorContext(ctx, "failed to insert reading", slog.String("deviceID", created.ID), slog.Any("error", err))
				os.Exit(1)
			}
			count++
		}
		log.Ctx(ctx).InfoContext(ctx, "seeded device", slog.String("deviceID", created.ID), slog.Int("readings", count))
	}

	if *withSolar {
		lat, lon := 24.8607, 67.0011
		_, err := svc.UpdateSolarConfig(ctx, *ownerID, types.SolarConfig{
			Enabled:             true,
			InstalledCapacityKW: 5,
			Latitude:            &lat,
			Longitude:           &lon,
		})
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to enable solar", slog.Any("error", err))
			os.Exit(1)
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "seeding complete")
}

func loadKW(sd seedDevice, hour int, rng *rand.Rand) float64 {
	kw := sd.baseKW
	if hour >= sd.peakHours[0] && hour < sd.peakHours[1] {
		kw *= 2
	}
	// +/- 20% jitter
	return kw * (0.8 + rng.Float64()*0.4)
}
