package eventbuilder

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/exp/slices"
)

// ModuleConfig holds the settings of one digitizer board.
type ModuleConfig struct {
	Module      uint8   `json:"Module"`
	NChannels   int     `json:"NChannels"`
	FW          string  `json:"FW"`
	PulserDelay float64 `json:"PulserDelay"` // ns
	TimeOffset  float64 `json:"TimeOffset"`  // ns, module N - reference module
	PulserCh    uint8   `json:"PulserCh"`
}

// ChannelConfig holds the settings of one (module, channel) pair.
type ChannelConfig struct {
	Module     uint8
	Channel    uint8
	IsTrigger  bool
	DetectorID int32 // -1 unless IsTrigger
	ArrayID    int32
	Category   Category
	IsPulser   bool
	HasAC      bool
	ACModule   uint8
	ACChannel  uint8
	// p0 + p1*adc + p2*adc^2 + p3*adc^3
	Calibration [4]float64
	ClockOffset float64

	Phi      float64
	Theta    float64
	Distance float64
	X        float64
	Y        float64
	Z        float64
}

// Calibrate converts an ADC value into energy.
func (c *ChannelConfig) Calibrate(adc uint16) float64 {
	a := float64(adc)
	p := c.Calibration
	return p[0] + a*(p[1]+a*(p[2]+a*p[3]))
}

type Category uint8

const (
	CategoryNone Category = iota
	CategoryA
	CategoryB
	CategoryC
)

func (c Category) String() string {
	switch c {
	case CategoryA:
		return "A"
	case CategoryB:
		return "B"
	case CategoryC:
		return "C"
	default:
		return "None"
	}
}

// IDRange is an inclusive range of array IDs. A range with Min > Max is
// empty.
type IDRange struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

func (r IDRange) Contains(id int32) bool {
	return id >= r.Min && id <= r.Max
}

type CategoryRanges struct {
	A IDRange `json:"a"`
	B IDRange `json:"b"`
	C IDRange `json:"c"`
}

func (r CategoryRanges) Classify(arrayID int32) Category {
	switch {
	case r.A.Contains(arrayID):
		return CategoryA
	case r.B.Contains(arrayID):
		return CategoryB
	case r.C.Contains(arrayID):
		return CategoryC
	}
	return CategoryNone
}

const noChannel = -1

// Registry is the read-only channel map shared by every stage of the run.
type Registry struct {
	modules  []ModuleConfig
	channels []ChannelConfig
	index    []int32 // module<<8 | channel -> position in channels
	offsets  [256]float64
	known    [256]bool
}

// NewRegistry validates the settings and builds the lookup tables. Channels
// are registered module by module, channel by channel, and trigger
// detector IDs must grow strictly in that order.
func NewRegistry(modules []ModuleConfig, channels []ChannelConfig, categories CategoryRanges) (*Registry, error) {
	r := &Registry{
		modules:  slices.Clone(modules),
		channels: slices.Clone(channels),
		index:    make([]int32, 1<<16),
	}
	slices.SortFunc(r.modules, func(a, b ModuleConfig) int {
		return int(a.Module) - int(b.Module)
	})
	slices.SortFunc(r.channels, func(a, b ChannelConfig) int {
		return int(channelKey(a.Module, a.Channel)) - int(channelKey(b.Module, b.Channel))
	})
	for i := range r.index {
		r.index[i] = noChannel
	}

	pulserCh := make(map[uint8]uint8, len(r.modules))
	for _, mod := range r.modules {
		if r.known[mod.Module] {
			return nil, fmt.Errorf("%w: module %d configured twice", ErrModuleMismatch, mod.Module)
		}
		r.known[mod.Module] = true
		r.offsets[mod.Module] = mod.TimeOffset
		pulserCh[mod.Module] = mod.PulserCh
	}

	lastID := int32(-1)
	for i := range r.channels {
		ch := &r.channels[i]
		if !r.known[ch.Module] {
			return nil, fmt.Errorf("%w: module %d channel %d", ErrUnknownModule, ch.Module, ch.Channel)
		}
		key := channelKey(ch.Module, ch.Channel)
		if r.index[key] != noChannel {
			return nil, fmt.Errorf("module %d channel %d configured twice", ch.Module, ch.Channel)
		}
		r.index[key] = int32(i)

		if ch.IsTrigger {
			if ch.DetectorID <= lastID {
				return nil, fmt.Errorf("%w: module %d channel %d has ID %d after ID %d",
					ErrDetectorOrder, ch.Module, ch.Channel, ch.DetectorID, lastID)
			}
			lastID = ch.DetectorID
		} else {
			ch.DetectorID = -1
		}
		ch.IsPulser = pulserCh[ch.Module] == ch.Channel
		ch.Category = categories.Classify(ch.ArrayID)
		ch.ClockOffset = r.offsets[ch.Module]
	}
	return r, nil
}

func channelKey(module, channel uint8) uint16 {
	return uint16(module)<<8 | uint16(channel)
}

// Lookup returns nil for channels that are not configured.
func (r *Registry) Lookup(module, channel uint8) *ChannelConfig {
	i := r.index[channelKey(module, channel)]
	if i == noChannel {
		return nil
	}
	return &r.channels[i]
}

func (r *Registry) Modules() []ModuleConfig {
	return slices.Clone(r.modules)
}

func (r *Registry) Channels() []ChannelConfig {
	return slices.Clone(r.channels)
}

func (r *Registry) HasModule(module uint8) bool {
	return r.known[module]
}

func (r *Registry) ClockOffset(module uint8) float64 {
	return r.offsets[module]
}

// SetClockOffsets fills the clock offset of every configured module. It is
// meant to be called once, before the registry is shared between workers.
func (r *Registry) SetClockOffsets(offsets map[uint8]float64) error {
	for _, mod := range r.modules {
		if _, ok := offsets[mod.Module]; !ok {
			return fmt.Errorf("%w: module %d", ErrMissingOffset, mod.Module)
		}
	}
	for i := range r.modules {
		offset := offsets[r.modules[i].Module]
		r.modules[i].TimeOffset = offset
		r.offsets[r.modules[i].Module] = offset
	}
	for i := range r.channels {
		r.channels[i].ClockOffset = r.offsets[r.channels[i].Module]
	}
	return nil
}

// channelSettingsJSON is the layout of chSettings.json entries.
type channelSettingsJSON struct {
	IsEventTrigger bool    `json:"IsEventTrigger"`
	DetectorID     int32   `json:"DetectorID"`
	ArrayID        *int32  `json:"ArrayID,omitempty"`
	Module         uint8   `json:"Module"`
	Channel        uint8   `json:"Channel"`
	HasAC          bool    `json:"HasAC"`
	ACModule       uint8   `json:"ACModule"`
	ACChannel      uint8   `json:"ACChannel"`
	Phi            float64 `json:"Phi"`
	Theta          float64 `json:"Theta"`
	Distance       float64 `json:"Distance"`
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Z              float64 `json:"z"`
	P0             float64 `json:"p0"`
	P1             float64 `json:"p1"`
	P2             float64 `json:"p2"`
	P3             float64 `json:"p3"`
}

func LoadModuleSettings(filename string) ([]ModuleConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	var modules []ModuleConfig
	if err := json.Unmarshal(data, &modules); err != nil {
		return nil, fmt.Errorf("error parsing module settings %s: %w", filename, err)
	}
	return modules, nil
}

// LoadChannelSettings reads chSettings.json, an array of modules each
// holding an array of channels.
func LoadChannelSettings(filename string) ([]ChannelConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &ErrOpenFile{Filename: filename, Err: err}
	}
	var entries [][]channelSettingsJSON
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing channel settings %s: %w", filename, err)
	}

	channels := make([]ChannelConfig, 0)
	for _, mod := range entries {
		for _, ch := range mod {
			arrayID := int32(ch.Module)*16 + int32(ch.Channel)
			if ch.ArrayID != nil {
				arrayID = *ch.ArrayID
			}
			channels = append(channels, ChannelConfig{
				Module:      ch.Module,
				Channel:     ch.Channel,
				IsTrigger:   ch.IsEventTrigger,
				DetectorID:  ch.DetectorID,
				ArrayID:     arrayID,
				HasAC:       ch.HasAC,
				ACModule:    ch.ACModule,
				ACChannel:   ch.ACChannel,
				Calibration: [4]float64{ch.P0, ch.P1, ch.P2, ch.P3},
				Phi:         ch.Phi,
				Theta:       ch.Theta,
				Distance:    ch.Distance,
				X:           ch.X,
				Y:           ch.Y,
				Z:           ch.Z,
			})
		}
	}
	return channels, nil
}

// GenerateTemplates writes modSettings.json and chSettings.json skeletons
// for nMods boards of nChs channels each.
func GenerateTemplates(modFile string, chFile string, nMods int, nChs int) error {
	modules := make([]ModuleConfig, nMods)
	channels := make([][]channelSettingsJSON, nMods)
	for i := 0; i < nMods; i++ {
		modules[i] = ModuleConfig{Module: uint8(i), NChannels: nChs, FW: "PHA"}
		channels[i] = make([]channelSettingsJSON, nChs)
		for j := 0; j < nChs; j++ {
			arrayID := int32(i*16 + j)
			channels[i][j] = channelSettingsJSON{
				DetectorID: -1,
				ArrayID:    &arrayID,
				Module:     uint8(i),
				Channel:    uint8(j),
				ACModule:   128,
				ACChannel:  128,
				P1:         1.,
			}
		}
	}
	if err := writeJSON(modFile, modules); err != nil {
		return err
	}
	return writeJSON(chFile, channels)
}

func writeJSON(filename string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", filename, err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("error writing %s: %w", filename, err)
	}
	return nil
}
