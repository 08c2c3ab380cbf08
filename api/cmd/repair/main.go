package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/phuslu/log"

	"repair-assistant/api/internal/app"
	"repair-assistant/api/internal/apperr"
	"repair-assistant/api/internal/config"
	"repair-assistant/api/internal/media"
	"repair-assistant/api/internal/pipeline"
)

func main() {
	image := flag.String("image", "", "path to a photo of the problem")
	video := flag.String("video", "", "path to a video of the problem")
	audio := flag.String("audio", "", "path to a voice note describing the problem")
	desc := flag.String("desc", "", "text description of the problem")
	location := flag.String("location", "", `address or "lat,lng" to search near`)
	radius := flag.Int("radius", 0, "search radius in meters (default from SEARCH_RADIUS_M)")
	asJSON := flag.Bool("json", false, "print the full response as JSON")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	app.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := app.OpenDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn().Err(err).Msg("running without persistence")
	} else if db != nil {
		defer db.Close()
	}

	req := pipeline.Request{
		Description: *desc,
		Paths:       map[media.Kind]string{},
		Location:    *location,
		RadiusM:     *radius,
	}
	for k, p := range map[media.Kind]string{media.Image: *image, media.Video: *video, media.Audio: *audio} {
		if strings.TrimSpace(p) != "" {
			req.Paths[k] = p
		}
	}

	resp, err := app.NewPipeline(cfg, db).Run(ctx, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if apperr.Is(err, apperr.Validation) {
			os.Exit(2)
		}
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
		return
	}
	printText(resp)
}

func printText(resp pipeline.Response) {
	fmt.Println("SUMMARY")
	for _, s := range resp.Summary {
		fmt.Println(s)
	}
	fmt.Println("\nREPAIR STEPS")
	for i, s := range resp.RepairSteps {
		fmt.Printf("%d. %s\n", i+1, s)
		if i < len(resp.StepVisuals) && resp.StepVisuals[i] != nil {
			fmt.Printf("   image: %s\n", *resp.StepVisuals[i])
		}
	}
	fmt.Println("\nMETADATA")
	md, _ := json.MarshalIndent(resp.Metadata, "", "  ")
	fmt.Println(string(md))

	if len(resp.ContractorsNearby) > 0 {
		fmt.Println("\nCONTRACTORS")
		for _, c := range resp.ContractorsNearby {
			fmt.Printf("- %s, %s (%.1f km) %s\n", c.Name, c.Address, c.DistanceKm, c.MapsURL)
		}
	}
	if len(resp.ProductsNeeded) > 0 {
		fmt.Println("\nPRODUCTS")
		for _, p := range resp.ProductsNeeded {
			fmt.Printf("- %s: %s at %s %s\n", p.PartName, p.Price, p.Store, p.Link)
		}
	}
}
