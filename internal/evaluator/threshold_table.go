package evaluator

import (
	"fmt"
	"os"
	"sort"

	"wisefido-vitals/internal/models"

	"gopkg.in/yaml.v3"
)

// ThresholdTable 各生命体征参数的阈值表（构建后只读，可并发访问）
type ThresholdTable struct {
	bands map[string]models.ThresholdBand
	order []string
}

// NewThresholdTable 创建阈值表（复制入参，调用方后续修改不影响表内容）
func NewThresholdTable(bands map[string]models.ThresholdBand) *ThresholdTable {
	t := &ThresholdTable{
		bands: make(map[string]models.ThresholdBand, len(bands)),
	}

	// 已知参数按固定顺序在前，其余参数按名称排序追加
	for _, p := range models.AllParameters {
		if band, ok := bands[p]; ok {
			t.bands[p] = copyBand(band)
			t.order = append(t.order, p)
		}
	}
	var extra []string
	for p, band := range bands {
		if _, ok := t.bands[p]; ok {
			continue
		}
		t.bands[p] = copyBand(band)
		extra = append(extra, p)
	}
	sort.Strings(extra)
	t.order = append(t.order, extra...)

	return t
}

// BoundsFor 查询参数的阈值，第二个返回值为 false 表示该参数未配置
func (t *ThresholdTable) BoundsFor(parameter string) (models.ThresholdBand, bool) {
	band, ok := t.bands[parameter]
	if !ok {
		return models.ThresholdBand{}, false
	}
	return copyBand(band), true
}

// Parameters 已配置的参数（顺序稳定）
func (t *ThresholdTable) Parameters() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// DefaultThresholdBands 默认临床阈值
func DefaultThresholdBands() map[string]models.ThresholdBand {
	return map[string]models.ThresholdBand{
		models.ParamHeartRate: {
			WarningLow: ptr(50), WarningHigh: ptr(110),
			CriticalLow: ptr(40), CriticalHigh: ptr(140),
		},
		models.ParamSystolicBP: {
			WarningLow: ptr(90), WarningHigh: ptr(160),
			CriticalLow: ptr(80), CriticalHigh: ptr(180),
		},
		models.ParamDiastolicBP: {
			WarningLow: ptr(50), WarningHigh: ptr(100),
			CriticalLow: ptr(40), CriticalHigh: ptr(110),
		},
		models.ParamSpO2: {
			WarningLow:  ptr(92),
			CriticalLow: ptr(88),
		},
		models.ParamTemperature: {
			WarningLow: ptr(36.0), WarningHigh: ptr(38.0),
			CriticalLow: ptr(35.0), CriticalHigh: ptr(39.5),
		},
		models.ParamRespiratoryRate: {
			WarningLow: ptr(10), WarningHigh: ptr(24),
			CriticalLow: ptr(8), CriticalHigh: ptr(30),
		},
		models.ParamGCS: {
			WarningLow:  ptr(13),
			CriticalLow: ptr(8),
		},
		// pain_score 不设阈值
	}
}

// thresholdFile 阈值覆盖文件格式
//
//	thresholds:
//	  heart_rate:
//	    warning_low: 55
//	    warning_high: 105
//	  pain_score: null   # 删除该参数的阈值
type thresholdFile struct {
	Thresholds map[string]*models.ThresholdBand `yaml:"thresholds"`
}

// LoadThresholdBands 加载阈值：默认值 + 文件覆盖（path 为空时只返回默认值）
// 文件中出现的参数整体替换默认值；值为 null 的参数被移除
func LoadThresholdBands(path string) (map[string]models.ThresholdBand, error) {
	bands := DefaultThresholdBands()
	if path == "" {
		return bands, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds file: %w", err)
	}

	var file thresholdFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse thresholds file: %w", err)
	}

	for parameter, band := range file.Thresholds {
		if band == nil {
			delete(bands, parameter)
			continue
		}
		if err := validateBand(parameter, *band); err != nil {
			return nil, err
		}
		bands[parameter] = *band
	}
	return bands, nil
}

// validateBand 同方向上 critical 必须比 warning 更极端
func validateBand(parameter string, band models.ThresholdBand) error {
	if band.WarningLow != nil && band.WarningHigh != nil && *band.WarningLow > *band.WarningHigh {
		return fmt.Errorf("invalid threshold for %s: warning_low > warning_high", parameter)
	}
	if band.CriticalLow != nil && band.WarningLow != nil && *band.CriticalLow > *band.WarningLow {
		return fmt.Errorf("invalid threshold for %s: critical_low > warning_low", parameter)
	}
	if band.CriticalHigh != nil && band.WarningHigh != nil && *band.CriticalHigh < *band.WarningHigh {
		return fmt.Errorf("invalid threshold for %s: critical_high < warning_high", parameter)
	}
	return nil
}

func copyBand(b models.ThresholdBand) models.ThresholdBand {
	return models.ThresholdBand{
		WarningLow:   copyFloat(b.WarningLow),
		WarningHigh:  copyFloat(b.WarningHigh),
		CriticalLow:  copyFloat(b.CriticalLow),
		CriticalHigh: copyFloat(b.CriticalHigh),
	}
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func ptr(v float64) *float64 {
	return &v
}
