package model

// SoilReading 是一次土壤检测的读数，N/P/K 为 0~1 之间的相对比例。
type SoilReading struct {
	PH         float64 `json:"ph" binding:"gte=0,lte=14"`
	Moisture   float64 `json:"moisture" binding:"gte=0,lte=100"`
	Nitrogen   float64 `json:"nitrogen" binding:"gte=0"`
	Phosphorus float64 `json:"phosphorus" binding:"gte=0"`
	Potassium  float64 `json:"potassium" binding:"gte=0"`
}

// SoilReport 是土壤规则表的分析结果。
type SoilReport struct {
	Reading  SoilReading `json:"reading"`
	PH       string      `json:"ph"`
	Moisture string      `json:"moisture"`
	Nutrient []string    `json:"nutrient"`
}

// CommodityPrice 是一条静态的市场价格。
type CommodityPrice struct {
	Commodity string `json:"commodity"`
	Price     string `json:"price"`
}

// QuickTopic 是侧边栏的快捷问题按钮。
type QuickTopic struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Question string `json:"question"`
}
