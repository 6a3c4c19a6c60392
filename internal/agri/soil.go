package agri

import (
	"math"
	"math/rand/v2"
	"tani-assist-go/internal/model"
)

// 土壤规则表的阈值。
const (
	PHAcidBelow       = 5.5
	PHAlkalineAbove   = 7.5
	MoistureDryBelow  = 30.0
	MoistureWetAbove  = 70.0
	NitrogenLowBelow  = 0.5
	PhosphorLowBelow  = 0.3
	PotassiumLowBelow = 0.4
)

// 土壤分析的建议文本。
const (
	AdvicePHAcidic     = "Tanah terlalu asam. Tambahkan kapur dolomit untuk menaikkan pH."
	AdvicePHAlkaline   = "Tanah terlalu basa. Tambahkan belerang atau bahan organik untuk menurunkan pH."
	AdvicePHOptimal    = "pH tanah optimal untuk sebagian besar tanaman."
	AdviceMoistureDry  = "Tanah terlalu kering. Tingkatkan frekuensi penyiraman atau gunakan mulsa."
	AdviceMoistureWet  = "Tanah terlalu basah. Perbaiki drainase dan kurangi penyiraman."
	AdviceMoistureOK   = "Kelembaban tanah optimal."
	AdviceNitrogenLow  = "Kandungan nitrogen rendah. Tambahkan pupuk urea atau pupuk kandang."
	AdvicePhosphorLow  = "Kandungan fosfor rendah. Tambahkan pupuk SP-36 atau TSP."
	AdvicePotassiumLow = "Kandungan kalium rendah. Tambahkan pupuk KCl atau abu sekam."
	AdviceNutrientOK   = "Kandungan unsur hara N, P, dan K seimbang."
)

// AnalyzeSoil 对读数执行三项相互独立的阈值检查（pH、湿度、NPK）。
func AnalyzeSoil(r model.SoilReading) model.SoilReport {
	report := model.SoilReport{Reading: r}

	switch {
	case r.PH < PHAcidBelow:
		report.PH = AdvicePHAcidic
	case r.PH > PHAlkalineAbove:
		report.PH = AdvicePHAlkaline
	default:
		report.PH = AdvicePHOptimal
	}

	switch {
	case r.Moisture < MoistureDryBelow:
		report.Moisture = AdviceMoistureDry
	case r.Moisture > MoistureWetAbove:
		report.Moisture = AdviceMoistureWet
	default:
		report.Moisture = AdviceMoistureOK
	}

	if r.Nitrogen < NitrogenLowBelow {
		report.Nutrient = append(report.Nutrient, AdviceNitrogenLow)
	}
	if r.Phosphorus < PhosphorLowBelow {
		report.Nutrient = append(report.Nutrient, AdvicePhosphorLow)
	}
	if r.Potassium < PotassiumLowBelow {
		report.Nutrient = append(report.Nutrient, AdvicePotassiumLow)
	}
	if len(report.Nutrient) == 0 {
		report.Nutrient = []string{AdviceNutrientOK}
	}
	return report
}

// RandomSoilReading 生成演示用的土壤读数，并非真实传感器数据。
func RandomSoilReading(rng *rand.Rand) model.SoilReading {
	between := func(lo, hi float64) float64 {
		return round2(lo + rng.Float64()*(hi-lo))
	}
	return model.SoilReading{
		PH:         between(4.5, 8.5),
		Moisture:   between(10, 90),
		Nitrogen:   between(0, 1),
		Phosphorus: between(0, 1),
		Potassium:  between(0, 1),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
