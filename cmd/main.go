package main

import (
	"flag"
	"os"
	"sort"

	"lte_rrc/internal/common/logger"
	"lte_rrc/internal/netsim"
	"lte_rrc/pkg/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	duration := flag.Duration("duration", 0, "Simulated run time, overrides run.duration")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *duration > 0 {
		cfg.Run.Duration = *duration
	}
	logger.ParseLogLevel(cfg.Log.Level)

	net, err := netsim.NewNetwork(cfg, logger.InitLogger(cfg.Log.Level, nil))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create network")
	}
	log.Info().Str("run", net.Id.String()).Msg("Starting LTE RRC simulation")

	if err := net.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start network")
	}
	if err := net.RunFor(cfg.Run.Duration); err != nil {
		log.Fatal().Err(err).Msg("Simulation aborted")
	}
	net.Stop()

	for _, s := range net.Summary() {
		log.Info().
			Uint64("imsi", s.Imsi).
			Str("state", s.State.String()).
			Uint16("cell", s.CellId).
			Uint16("rnti", s.Rnti).
			Ints("drbs", drbList(s.Drbs)).
			Msg("UE")
	}

	snap, err := net.Metrics().Snapshot()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read metrics")
		return
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		log.Info().Float64("value", snap[k]).Msg(k)
	}
}

func drbList(ids []uint8) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[i] = int(id)
	}
	return out
}
