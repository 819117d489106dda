package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const ENV_PREFIX = "LTE"

const (
	RRC_CODEC_IDEAL = "ideal"
	RRC_CODEC_ASN   = "asn"
)

const (
	RLC_POLICY_SM_ALWAYS = "sm"
	RLC_POLICY_UM_ALWAYS = "um"
	RLC_POLICY_AM_ALWAYS = "am"
	RLC_POLICY_PER_BASED = "per"
)

const (
	HANDOVER_ALGORITHM_NONE    = "none"
	HANDOVER_ALGORITHM_A3_RSRP = "a3_rsrp"
)

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Timers  TimersConfig  `yaml:"timers"`
	X2      X2Config      `yaml:"x2"`
	Rrc     RrcConfig     `yaml:"rrc"`
	Metrics MetricsConfig `yaml:"metrics"`
	Enb     []EnbConfig   `yaml:"enb"`
	Ue      []UeConfig    `yaml:"ue"`
	Run     RunConfig     `yaml:"run"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL"`
}

// TimersConfig holds every protocol supervision timer.
type TimersConfig struct {
	ConnectionRequestTimeout  time.Duration `yaml:"connection_request_timeout" envconfig:"CONNECTION_REQUEST_TIMEOUT"`
	ConnectionSetupTimeout    time.Duration `yaml:"connection_setup_timeout" envconfig:"CONNECTION_SETUP_TIMEOUT"`
	ConnectionRejectedTimeout time.Duration `yaml:"connection_rejected_timeout" envconfig:"CONNECTION_REJECTED_TIMEOUT"`
	HandoverJoiningTimeout    time.Duration `yaml:"handover_joining_timeout" envconfig:"HANDOVER_JOINING_TIMEOUT"`
	HandoverLeavingTimeout    time.Duration `yaml:"handover_leaving_timeout" envconfig:"HANDOVER_LEAVING_TIMEOUT"`
	T300                      time.Duration `yaml:"t300" envconfig:"T300"`
	SystemInformationPeriod   time.Duration `yaml:"system_information_period" envconfig:"SYSTEM_INFORMATION_PERIOD"`
	FirstSystemInformation    time.Duration `yaml:"first_system_information" envconfig:"FIRST_SYSTEM_INFORMATION"`
}

type X2Config struct {
	Delay time.Duration `yaml:"delay" envconfig:"X2_DELAY"`
}

type RrcConfig struct {
	Codec string        `yaml:"codec" envconfig:"RRC_CODEC"`
	Delay time.Duration `yaml:"delay" envconfig:"RRC_DELAY"`
	// RaDelay is the time the stub MAC takes to complete a random access.
	RaDelay time.Duration `yaml:"ra_delay" envconfig:"RA_DELAY"`
	// PathSwitchDelay is the time the stub core takes to acknowledge a path switch.
	PathSwitchDelay time.Duration `yaml:"path_switch_delay" envconfig:"PATH_SWITCH_DELAY"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace" envconfig:"METRICS_NAMESPACE"`
}

type RunConfig struct {
	Duration time.Duration    `yaml:"duration" envconfig:"RUN_DURATION"`
	Handover []HandoverConfig `yaml:"handover" ignored:"true"`
}

// HandoverConfig schedules a network-initiated handover in the driver.
type HandoverConfig struct {
	At           time.Duration `yaml:"at"`
	Imsi         uint64        `yaml:"imsi"`
	TargetCellId uint16        `yaml:"target_cell_id"`
}

type EnbConfig struct {
	CellId                  uint16   `yaml:"cell_id"`
	DlEarfcn                uint32   `yaml:"dl_earfcn"`
	UlEarfcn                uint32   `yaml:"ul_earfcn"`
	DlBandwidth             uint8    `yaml:"dl_bandwidth"`
	UlBandwidth             uint8    `yaml:"ul_bandwidth"`
	QRxLevMin               int8     `yaml:"q_rx_lev_min"`
	CsgIndication           bool     `yaml:"csg_indication"`
	CsgId                   uint32   `yaml:"csg_id"`
	SrsPeriodicity          uint16   `yaml:"srs_periodicity"`
	DefaultTransmissionMode uint8    `yaml:"default_transmission_mode"`
	RlcPolicy               string   `yaml:"rlc_policy"`
	AdmitConnectionRequest  *bool    `yaml:"admit_connection_request"`
	AdmitHandoverRequest    *bool    `yaml:"admit_handover_request"`
	X2Neighbours            []uint16 `yaml:"x2_neighbours"`
	HandoverAlgorithm       string   `yaml:"handover_algorithm"`
	// A3Hysteresis is in dB, A3TimeToTrigger is rounded to milliseconds.
	A3Hysteresis    float64       `yaml:"a3_hysteresis"`
	A3TimeToTrigger time.Duration `yaml:"a3_time_to_trigger"`
	// Rsrp is the stub radio level (dBm) seen by every UE from this cell.
	Rsrp float64 `yaml:"rsrp"`
}

type UeConfig struct {
	Imsi         uint64 `yaml:"imsi"`
	DlEarfcn     uint32 `yaml:"dl_earfcn"`
	CsgWhiteList uint32 `yaml:"csg_white_list"`
	// ForceCellId skips cell search and camps directly on the given cell.
	ForceCellId uint16         `yaml:"force_cell_id"`
	Bearers     []BearerConfig `yaml:"bearers"`
}

type BearerConfig struct {
	Qci   uint8  `yaml:"qci"`
	GbrDl uint64 `yaml:"gbr_dl"`
	GbrUl uint64 `yaml:"gbr_ul"`
}

// AdmitsConnections reports the admission policy, defaulting to admit.
func (e *EnbConfig) AdmitsConnections() bool {
	return e.AdmitConnectionRequest == nil || *e.AdmitConnectionRequest
}

func (e *EnbConfig) AdmitsHandovers() bool {
	return e.AdmitHandoverRequest == nil || *e.AdmitHandoverRequest
}

func DefaultTimers() TimersConfig {
	return TimersConfig{
		ConnectionRequestTimeout:  15 * time.Millisecond,
		ConnectionSetupTimeout:    150 * time.Millisecond,
		ConnectionRejectedTimeout: 30 * time.Millisecond,
		HandoverJoiningTimeout:    200 * time.Millisecond,
		HandoverLeavingTimeout:    500 * time.Millisecond,
		T300:                      100 * time.Millisecond,
		SystemInformationPeriod:   80 * time.Millisecond,
		FirstSystemInformation:    16 * time.Millisecond,
	}
}

func DefaultEnb(cellId uint16) EnbConfig {
	return EnbConfig{
		CellId:                  cellId,
		DlEarfcn:                100,
		UlEarfcn:                18100,
		DlBandwidth:             25,
		UlBandwidth:             25,
		QRxLevMin:               -70,
		SrsPeriodicity:          40,
		DefaultTransmissionMode: 0,
		RlcPolicy:               RLC_POLICY_AM_ALWAYS,
		HandoverAlgorithm:       HANDOVER_ALGORITHM_A3_RSRP,
		A3Hysteresis:            3,
		A3TimeToTrigger:         256 * time.Millisecond,
		Rsrp:                    -80,
	}
}

// Default returns a configuration with no cells or UEs and all timers set.
func Default() *Config {
	return &Config{
		Log:     LogConfig{Level: "info"},
		Timers:  DefaultTimers(),
		Rrc:     RrcConfig{Codec: RRC_CODEC_IDEAL, RaDelay: 3 * time.Millisecond, PathSwitchDelay: 2 * time.Millisecond},
		Metrics: MetricsConfig{Namespace: "lte_rrc"},
		Run:     RunConfig{Duration: 2 * time.Second},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// ApplyEnv overrides scalar settings from LTE_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(ENV_PREFIX, &c.Log); err != nil {
		return err
	}
	if err := envconfig.Process(ENV_PREFIX, &c.Timers); err != nil {
		return err
	}
	if err := envconfig.Process(ENV_PREFIX, &c.X2); err != nil {
		return err
	}
	if err := envconfig.Process(ENV_PREFIX, &c.Rrc); err != nil {
		return err
	}
	if err := envconfig.Process(ENV_PREFIX, &c.Metrics); err != nil {
		return err
	}
	return envconfig.Process(ENV_PREFIX, &c.Run)
}

var validSrsPeriodicity = map[uint16]bool{2: true, 5: true, 10: true, 20: true, 40: true, 80: true, 160: true, 320: true}

func (c *Config) Validate() error {
	if err := c.Timers.Validate(); err != nil {
		return err
	}
	if c.Rrc.Codec != RRC_CODEC_IDEAL && c.Rrc.Codec != RRC_CODEC_ASN {
		return fmt.Errorf("rrc.codec must be %q or %q", RRC_CODEC_IDEAL, RRC_CODEC_ASN)
	}
	if c.X2.Delay < 0 || c.Rrc.Delay < 0 {
		return fmt.Errorf("delays must not be negative")
	}

	cells := make(map[uint16]bool, len(c.Enb))
	for i := range c.Enb {
		e := &c.Enb[i]
		if e.CellId == 0 {
			return fmt.Errorf("enb[%d].cell_id is required", i)
		}
		if cells[e.CellId] {
			return fmt.Errorf("enb[%d].cell_id %d is duplicated", i, e.CellId)
		}
		cells[e.CellId] = true
		if e.DlBandwidth == 0 || e.UlBandwidth == 0 {
			return fmt.Errorf("enb[%d] bandwidths are required", i)
		}
		if !validSrsPeriodicity[e.SrsPeriodicity] {
			return fmt.Errorf("enb[%d].srs_periodicity %d is not supported", i, e.SrsPeriodicity)
		}
		switch e.RlcPolicy {
		case RLC_POLICY_SM_ALWAYS, RLC_POLICY_UM_ALWAYS, RLC_POLICY_AM_ALWAYS, RLC_POLICY_PER_BASED:
		default:
			return fmt.Errorf("enb[%d].rlc_policy %q is not supported", i, e.RlcPolicy)
		}
		switch e.HandoverAlgorithm {
		case HANDOVER_ALGORITHM_NONE, HANDOVER_ALGORITHM_A3_RSRP, "":
		default:
			return fmt.Errorf("enb[%d].handover_algorithm %q is not supported", i, e.HandoverAlgorithm)
		}
		if e.A3Hysteresis < 0 || e.A3Hysteresis > 15 {
			return fmt.Errorf("enb[%d].a3_hysteresis must be within 0..15 dB", i)
		}
	}
	for i := range c.Enb {
		for _, n := range c.Enb[i].X2Neighbours {
			if !cells[n] {
				return fmt.Errorf("enb[%d].x2_neighbours references unknown cell %d", i, n)
			}
		}
	}

	imsis := make(map[uint64]bool, len(c.Ue))
	for i, u := range c.Ue {
		if u.Imsi == 0 {
			return fmt.Errorf("ue[%d].imsi is required", i)
		}
		if imsis[u.Imsi] {
			return fmt.Errorf("ue[%d].imsi %d is duplicated", i, u.Imsi)
		}
		imsis[u.Imsi] = true
		if u.ForceCellId != 0 && !cells[u.ForceCellId] {
			return fmt.Errorf("ue[%d].force_cell_id references unknown cell %d", i, u.ForceCellId)
		}
	}
	for i, h := range c.Run.Handover {
		if !imsis[h.Imsi] {
			return fmt.Errorf("run.handover[%d].imsi %d is unknown", i, h.Imsi)
		}
		if !cells[h.TargetCellId] {
			return fmt.Errorf("run.handover[%d].target_cell_id %d is unknown", i, h.TargetCellId)
		}
	}
	return nil
}

func (t *TimersConfig) Validate() error {
	checks := []struct {
		name string
		d    time.Duration
	}{
		{"timers.connection_request_timeout", t.ConnectionRequestTimeout},
		{"timers.connection_setup_timeout", t.ConnectionSetupTimeout},
		{"timers.connection_rejected_timeout", t.ConnectionRejectedTimeout},
		{"timers.handover_joining_timeout", t.HandoverJoiningTimeout},
		{"timers.handover_leaving_timeout", t.HandoverLeavingTimeout},
		{"timers.t300", t.T300},
		{"timers.system_information_period", t.SystemInformationPeriod},
	}
	for _, c := range checks {
		if c.d <= 0 {
			return fmt.Errorf("%s must be positive", c.name)
		}
	}
	if t.FirstSystemInformation < 0 {
		return fmt.Errorf("timers.first_system_information must not be negative")
	}
	return nil
}
