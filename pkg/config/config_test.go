package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYaml = `
log:
  level: warn
rrc:
  codec: asn
  delay: 1ms
enb:
  - cell_id: 1
    dl_earfcn: 100
    ul_earfcn: 18100
    dl_bandwidth: 25
    ul_bandwidth: 25
    srs_periodicity: 40
    rlc_policy: um
    x2_neighbours: [2]
  - cell_id: 2
    dl_earfcn: 100
    ul_earfcn: 18100
    dl_bandwidth: 50
    ul_bandwidth: 50
    srs_periodicity: 80
    rlc_policy: per
    admit_handover_request: false
ue:
  - imsi: 1001
    force_cell_id: 1
    bearers:
      - qci: 1
        gbr_dl: 64000
run:
  duration: 500ms
  handover:
    - at: 100ms
      imsi: 1001
      target_cell_id: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func validConfig() *Config {
	cfg := Default()
	cfg.Enb = []EnbConfig{DefaultEnb(1), DefaultEnb(2)}
	cfg.Enb[0].X2Neighbours = []uint16{2}
	cfg.Ue = []UeConfig{{Imsi: 1001, ForceCellId: 1}}
	return cfg
}

// Test 1: a file overrides the defaults it names and keeps the others
func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, testYaml))
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, RRC_CODEC_ASN, cfg.Rrc.Codec)
	assert.Equal(t, time.Millisecond, cfg.Rrc.Delay)
	assert.Equal(t, 3*time.Millisecond, cfg.Rrc.RaDelay)
	assert.Equal(t, DefaultTimers(), cfg.Timers)
	assert.Equal(t, "lte_rrc", cfg.Metrics.Namespace)

	require.Len(t, cfg.Enb, 2)
	assert.Equal(t, []uint16{2}, cfg.Enb[0].X2Neighbours)
	assert.True(t, cfg.Enb[0].AdmitsConnections())
	assert.True(t, cfg.Enb[0].AdmitsHandovers())
	assert.False(t, cfg.Enb[1].AdmitsHandovers())

	require.Len(t, cfg.Ue, 1)
	assert.Equal(t, uint64(64000), cfg.Ue[0].Bearers[0].GbrDl)
	assert.Equal(t, 500*time.Millisecond, cfg.Run.Duration)
	require.Len(t, cfg.Run.Handover, 1)
	assert.Equal(t, 100*time.Millisecond, cfg.Run.Handover[0].At)
}

// Test 2: LTE_* variables win over the file
func TestLoadEnvironment(t *testing.T) {
	t.Setenv("LTE_LOG_LEVEL", "debug")
	t.Setenv("LTE_T300", "250ms")
	t.Setenv("LTE_X2_DELAY", "4ms")

	cfg, err := Load(writeConfig(t, testYaml))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 250*time.Millisecond, cfg.Timers.T300)
	assert.Equal(t, 4*time.Millisecond, cfg.X2.Delay)
}

// Test 3: unreadable, malformed and invalid files are reported
func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Load(writeConfig(t, "enb: ["))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "rrc:\n  codec: xml\n"))
	assert.ErrorContains(t, err, "validate config")
}

// Test 4: every validation rule rejects its broken field
func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(cfg *Config)
		want   string
	}{
		{"timer", func(cfg *Config) { cfg.Timers.T300 = 0 }, "timers.t300"},
		{"codec", func(cfg *Config) { cfg.Rrc.Codec = "xml" }, "rrc.codec"},
		{"delay", func(cfg *Config) { cfg.X2.Delay = -time.Millisecond }, "negative"},
		{"cell id", func(cfg *Config) { cfg.Enb[1].CellId = 0 }, "cell_id is required"},
		{"duplicate cell", func(cfg *Config) { cfg.Enb[1].CellId = 1 }, "duplicated"},
		{"bandwidth", func(cfg *Config) { cfg.Enb[0].DlBandwidth = 0 }, "bandwidths"},
		{"srs", func(cfg *Config) { cfg.Enb[0].SrsPeriodicity = 7 }, "srs_periodicity"},
		{"rlc policy", func(cfg *Config) { cfg.Enb[0].RlcPolicy = "tm" }, "rlc_policy"},
		{"algorithm", func(cfg *Config) { cfg.Enb[0].HandoverAlgorithm = "a5" }, "handover_algorithm"},
		{"hysteresis", func(cfg *Config) { cfg.Enb[0].A3Hysteresis = 20 }, "a3_hysteresis"},
		{"neighbour", func(cfg *Config) { cfg.Enb[0].X2Neighbours = []uint16{9} }, "x2_neighbours"},
		{"imsi", func(cfg *Config) { cfg.Ue[0].Imsi = 0 }, "imsi is required"},
		{"duplicate imsi", func(cfg *Config) { cfg.Ue = append(cfg.Ue, cfg.Ue[0]) }, "duplicated"},
		{"forced cell", func(cfg *Config) { cfg.Ue[0].ForceCellId = 9 }, "force_cell_id"},
		{"handover imsi", func(cfg *Config) {
			cfg.Run.Handover = []HandoverConfig{{Imsi: 7, TargetCellId: 2}}
		}, "run.handover[0].imsi"},
		{"handover target", func(cfg *Config) {
			cfg.Run.Handover = []HandoverConfig{{Imsi: 1001, TargetCellId: 9}}
		}, "target_cell_id"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := validConfig()
			c.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), c.want)
		})
	}
}
