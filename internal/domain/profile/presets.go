package profile

import (
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/medrank/internal/domain/model"
)

// Preset is a named, ready-made weight vector.
type Preset struct {
	Key         string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Weights     Weights  `json:"weights" yaml:"weights"`
	Scenarios   []string `json:"suitable_scenarios,omitempty" yaml:"suitable_scenarios"`
}

// Profile builds a stored, non-default profile from the preset.
func (p Preset) Profile(now time.Time) model.WeightProfile {
	return model.WeightProfile{
		Name:        p.Name,
		Description: p.Description,
		Influence:   p.Weights.Influence,
		Activity:    p.Weights.Activity,
		Quality:     p.Weights.Quality,
		Price:       p.Weights.Price,
		State:       model.StateStored,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Built-in preset keys.
const (
	PresetBalanced     = "balanced"
	PresetConservative = "conservative"
	PresetAggressive   = "aggressive"
	PresetBrandFocused = "brand_focused"
)

var builtins = []Preset{
	{
		Key:         PresetBalanced,
		Name:        "平衡型投放",
		Description: "标准医疗健康领域权重配置，各指标权重均衡",
		Weights:     Weights{Influence: 0.22, Activity: 0.15, Quality: 0.28, Price: 0.35},
		Scenarios:   []string{"通用场景", "综合考量", "长期合作"},
	},
	{
		Key:         PresetConservative,
		Name:        "保守型投放",
		Description: "适合新合作医生，重视性价比和专业可信度",
		Weights:     Weights{Influence: 0.20, Activity: 0.15, Quality: 0.25, Price: 0.40},
		Scenarios:   []string{"新医生合作", "预算有限", "风险控制"},
	},
	{
		Key:         PresetAggressive,
		Name:        "积极型投放",
		Description: "适合已验证医生，重视影响力和ROI预测",
		Weights:     Weights{Influence: 0.30, Activity: 0.20, Quality: 0.25, Price: 0.25},
		Scenarios:   []string{"效果导向", "头部医生", "快速扩张"},
	},
	{
		Key:         PresetBrandFocused,
		Name:        "品牌型投放",
		Description: "适合品牌宣传，重视内容质量和医疗可信度",
		Weights:     Weights{Influence: 0.18, Activity: 0.27, Quality: 0.35, Price: 0.20},
		Scenarios:   []string{"品牌建设", "权威背书", "专业形象"},
	},
}

// Presets returns a copy of the built-in presets.
func Presets() []Preset {
	out := make([]Preset, len(builtins))
	copy(out, builtins)
	return out
}

// FindPreset looks key up in presets.
func FindPreset(presets []Preset, key string) (Preset, bool) {
	for _, p := range presets {
		if p.Key == key {
			return p, true
		}
	}
	return Preset{}, false
}

type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads presets from a YAML document of the form
//
//	presets:
//	  - id: clinic
//	    name: 门诊推广
//	    weights: {influence: 0.3, activity: 0.2, quality: 0.3, price: 0.2}
//
// Every preset must carry a unique id and valid weights.
func LoadPresets(r io.Reader) ([]Preset, error) {
	var f presetFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoPresets
		}
		return nil, fmt.Errorf("decode presets: %w", err)
	}
	if len(f.Presets) == 0 {
		return nil, ErrNoPresets
	}
	seen := make(map[string]struct{}, len(f.Presets))
	for i, p := range f.Presets {
		if p.Key == "" {
			return nil, fmt.Errorf("preset %d: %w", i, ErrPresetKey)
		}
		if _, dup := seen[p.Key]; dup {
			return nil, fmt.Errorf("preset %q: %w", p.Key, ErrDuplicatePreset)
		}
		seen[p.Key] = struct{}{}
		if p.Name == "" {
			f.Presets[i].Name = p.Key
		}
		if c := CheckWeights(p.Weights); !c.Valid {
			return nil, fmt.Errorf("preset %q: %w: %v", p.Key, ErrInvalidPreset, c.Errors)
		}
	}
	return f.Presets, nil
}
