// Package agri 包含与农业领域相关的纯规则：话题相关性过滤、土壤分析规则表、
// 每日提示、市场价格和快捷问题。这里的函数不访问网络或存储。
package agri

import (
	"strings"
	"unicode"
)

// 话题类别，写入 conversations.topic_category。
const (
	CategoryCrops     = "tanaman"
	CategoryPests     = "hama_penyakit"
	CategorySoil      = "pupuk_tanah"
	CategoryWeather   = "cuaca_irigasi"
	CategoryHarvest   = "panen_pasar"
	CategoryLivestock = "peternakan"
	CategoryGeneral   = "umum"
	CategoryImage     = "gambar"
)

type keywordGroup struct {
	category string
	keywords []string
}

// allowList 按顺序匹配，先命中的分组决定类别。
var allowList = []keywordGroup{
	{CategoryCrops, []string{"tanam", "bibit", "benih", "padi", "jagung", "cabai", "cabe", "tomat", "bawang", "kedelai", "singkong", "sayur", "buah", "kebun", "sawah", "hidroponik", "kopi", "kakao", "sawit"}},
	{CategoryPests, []string{"hama", "penyakit", "wereng", "ulat", "jamur", "pestisida", "gulma", "layu"}},
	{CategorySoil, []string{"pupuk", "kompos", "tanah", "organik", "urea", "npk", "lahan"}},
	{CategoryWeather, []string{"cuaca", "hujan", "kemarau", "musim", "irigasi", "siram"}},
	{CategoryHarvest, []string{"panen", "gabah", "tengkulak"}},
	{CategoryLivestock, []string{"ternak", "sapi", "kambing", "ayam", "ikan", "kolam", "pakan"}},
	{CategoryGeneral, []string{"tani", "agri", "budidaya", "farming"}},
}

var denyList = []string{
	"film", "musik", "lagu", "game", "politik", "pemilu", "artis", "selebriti", "gosip",
	"sepak bola", "anime", "drakor", "drama korea", "saham", "kripto", "crypto", "judi",
	"pacar", "zodiak",
}

// Verdict 是相关性过滤的结果。
type Verdict struct {
	OnTopic  bool   `json:"onTopic"`
	Category string `json:"category"`
	Keyword  string `json:"keyword,omitempty"`
}

// Classify 判断输入是否与农业相关：先查允许词表，再查拒绝词表，都不命中时默认相关。
// 关键词只在词首匹配，"tanaman" 命中 tanam，"berikan" 不会命中 ikan。
func Classify(text string) Verdict {
	normalized := normalize(text)
	for _, group := range allowList {
		for _, kw := range group.keywords {
			if hasWordPrefix(normalized, kw) {
				return Verdict{OnTopic: true, Category: group.category, Keyword: kw}
			}
		}
	}
	for _, kw := range denyList {
		if hasWordPrefix(normalized, kw) {
			return Verdict{OnTopic: false, Keyword: kw}
		}
	}
	return Verdict{OnTopic: true, Category: CategoryGeneral}
}

// normalize 转小写并按非字母数字切词，返回以空格包围、单空格分隔的词序列。
func normalize(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(words, " ") + " "
}

func hasWordPrefix(normalized, kw string) bool {
	return strings.Contains(normalized, " "+kw)
}

// OffTopicMessage 是离题时展示给用户的提示。
const OffTopicMessage = "Maaf, saya hanya dapat membantu pertanyaan seputar pertanian seperti tanaman, pupuk, hama, cuaca, dan teknik bercocok tanam. Silakan ajukan pertanyaan terkait pertanian. 🌱"
