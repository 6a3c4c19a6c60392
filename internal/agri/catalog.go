package agri

import (
	"math/rand/v2"
	"tani-assist-go/internal/model"
	"time"
)

var dailyTips = []string{
	"Periksa daun bagian bawah setiap pagi untuk mendeteksi hama lebih awal.",
	"Gunakan mulsa jerami untuk menjaga kelembaban tanah di musim kemarau.",
	"Lakukan rotasi tanaman untuk memutus siklus hama dan penyakit.",
	"Siram tanaman pada pagi atau sore hari agar air tidak cepat menguap.",
	"Buat saluran drainase sebelum musim hujan agar akar tidak busuk.",
	"Pupuk kandang sebaiknya difermentasi dulu sebelum diberikan ke tanaman.",
	"Tanam refugia seperti bunga matahari untuk menarik musuh alami hama.",
	"Uji pH tanah minimal sekali setiap musim tanam.",
	"Pilih benih bersertifikat untuk hasil panen yang lebih seragam.",
	"Catat jadwal tanam, pemupukan, dan panen agar mudah dievaluasi.",
}

// TipFor 按“日期中的日 % 提示数量”选择当天的提示。
func TipFor(day time.Time) string {
	return dailyTips[day.Day()%len(dailyTips)]
}

// RandomTip 随机选择一条提示。
func RandomTip(rng *rand.Rand) string {
	return dailyTips[rng.IntN(len(dailyTips))]
}

var prices = []model.CommodityPrice{
	{Commodity: "Cabai Merah", Price: "Rp 45.000/kg"},
	{Commodity: "Bawang Merah", Price: "Rp 35.000/kg"},
	{Commodity: "Tomat", Price: "Rp 12.000/kg"},
	{Commodity: "Beras Medium", Price: "Rp 13.500/kg"},
	{Commodity: "Jagung Pipil", Price: "Rp 6.000/kg"},
	{Commodity: "Kedelai", Price: "Rp 11.000/kg"},
}

// Prices 返回固定的商品价格表。价格不会更新，仅作展示。
func Prices() []model.CommodityPrice {
	out := make([]model.CommodityPrice, len(prices))
	copy(out, prices)
	return out
}

var quickTopics = []model.QuickTopic{
	{ID: "hama", Label: "🐛 Pengendalian Hama", Question: "Bagaimana cara mengendalikan hama secara alami?"},
	{ID: "pupuk", Label: "🌿 Pemupukan", Question: "Kapan waktu yang tepat untuk memberikan pupuk pada tanaman?"},
	{ID: "cuaca", Label: "🌦️ Cuaca & Musim", Question: "Bagaimana cara merawat cabai saat musim hujan?"},
	{ID: "bibit", Label: "🌱 Pemilihan Bibit", Question: "Bagaimana cara memilih bibit padi yang unggul?"},
	{ID: "panen", Label: "🌾 Panen & Pascapanen", Question: "Bagaimana cara menyimpan hasil panen agar tidak cepat rusak?"},
	{ID: "tanah", Label: "🪨 Kesuburan Tanah", Question: "Bagaimana cara meningkatkan kesuburan tanah secara organik?"},
}

// QuickTopics 返回全部快捷问题。
func QuickTopics() []model.QuickTopic {
	out := make([]model.QuickTopic, len(quickTopics))
	copy(out, quickTopics)
	return out
}

// QuickTopic 根据 ID 查找快捷问题。
func QuickTopic(id string) (model.QuickTopic, bool) {
	for _, t := range quickTopics {
		if t.ID == id {
			return t, true
		}
	}
	return model.QuickTopic{}, false
}

var commonDiseases = []model.PlantDisease{
	{
		Name:           "Blas",
		Symptoms:       "Bercak belah ketupat berwarna abu-abu dengan tepi coklat pada daun, leher malai busuk.",
		Treatment:      "Semprot fungisida berbahan aktif trisiklazol sesuai dosis anjuran.",
		Prevention:     "Gunakan varietas tahan, hindari pupuk nitrogen berlebihan, atur jarak tanam.",
		AffectedPlants: "padi",
	},
	{
		Name:           "Antraknosa",
		Symptoms:       "Bercak cekung coklat kehitaman pada buah, buah membusuk dan rontok.",
		Treatment:      "Petik dan musnahkan buah sakit, semprot fungisida berbahan tembaga.",
		Prevention:     "Gunakan benih sehat, perbaiki drainase, pasang mulsa plastik.",
		AffectedPlants: "cabai, tomat, mangga",
	},
	{
		Name:           "Layu Fusarium",
		Symptoms:       "Daun menguning mulai dari bawah, tanaman layu lalu mati, pembuluh batang berwarna coklat.",
		Treatment:      "Cabut dan bakar tanaman sakit, aplikasikan Trichoderma pada lubang tanam.",
		Prevention:     "Rotasi tanaman, kapur tanah masam, gunakan bibit sehat.",
		AffectedPlants: "tomat, cabai, pisang, semangka",
	},
	{
		Name:           "Hawar Daun Bakteri",
		Symptoms:       "Garis basah pada tepi daun yang melebar menjadi kuning keabu-abuan lalu mengering.",
		Treatment:      "Keringkan petakan sementara, semprot bakterisida berbahan tembaga.",
		Prevention:     "Gunakan varietas tahan, hindari luka pada tanaman, pemupukan berimbang.",
		AffectedPlants: "padi",
	},
	{
		Name:           "Bulai",
		Symptoms:       "Daun bergaris kuning keputihan, pertumbuhan kerdil, tongkol tidak terbentuk.",
		Treatment:      "Cabut tanaman terserang sedini mungkin agar tidak menular.",
		Prevention:     "Perlakuan benih dengan fungisida metalaksil, tanam serempak.",
		AffectedPlants: "jagung",
	},
	{
		Name:           "Busuk Daun",
		Symptoms:       "Bercak basah hijau gelap pada daun yang cepat meluas saat lembap, lapisan putih di bawah daun.",
		Treatment:      "Buang daun sakit, semprot fungisida mankozeb.",
		Prevention:     "Hindari kelembapan tinggi, perbaiki sirkulasi udara, jangan menyiram daun sore hari.",
		AffectedPlants: "kentang, tomat",
	},
}

// CommonDiseases 返回预置的常见作物病害，用于初始化 plant_diseases 表。
func CommonDiseases() []model.PlantDisease {
	out := make([]model.PlantDisease, len(commonDiseases))
	copy(out, commonDiseases)
	return out
}
