package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"tani-assist-go/internal/model"
	"tani-assist-go/pkg/database"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "tani.db"))
	require.NoError(t, err)
	db.Logger = logger.Discard
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, Password: "x", Name: "Budi", Location: "Garut", FarmingType: "hortikultura"}
	require.NoError(t, NewUserRepository(db).Create(u))
	return u
}

func newConv(userID uint, input string, at time.Time) *model.Conversation {
	return &model.Conversation{
		ConvID:        uuid.NewString(),
		UserID:        userID,
		Timestamp:     at,
		UserInput:     input,
		AIResponse:    "jawaban untuk " + input,
		TopicCategory: "tanaman",
	}
}

func TestUserRepositoryRoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	u := createUser(t, db, "budi")
	require.NotZero(t, u.UserID)

	found, err := repo.FindByUsername("budi")
	require.NoError(t, err)
	assert.Equal(t, "Garut", found.Location)

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.TouchLastActive(u.UserID, now))
	byID, err := repo.FindByID(u.UserID)
	require.NoError(t, err)
	assert.True(t, now.Equal(byID.LastActive))

	_, err = repo.FindByUsername("missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUsageGetMissingReturnsZero(t *testing.T) {
	db := newTestDB(t)
	usage, err := NewUsageRepository(db).Get(42)
	require.NoError(t, err)
	assert.Equal(t, uint(42), usage.UserID)
	assert.Zero(t, usage.DailyCount)
}

func TestUsageRolloverOncePerDay(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsageRepository(db)
	u := createUser(t, db, "sari")

	usage, rolled, err := repo.Rollover(u.UserID, "2024-05-01")
	require.NoError(t, err)
	assert.False(t, rolled, "fresh row starts on today")
	assert.Equal(t, "2024-05-01", usage.LastReset)

	for i := 0; i < 3; i++ {
		_, err := repo.RecordExchange(newConv(u.UserID, "padi", time.Now()), "2024-05-01", 10)
		require.NoError(t, err)
	}

	usage, rolled, err = repo.Rollover(u.UserID, "2024-05-02")
	require.NoError(t, err)
	assert.True(t, rolled)
	assert.Zero(t, usage.DailyCount)
	assert.Equal(t, 3, usage.TotalUsage)

	_, rolled, err = repo.Rollover(u.UserID, "2024-05-02")
	require.NoError(t, err)
	assert.False(t, rolled, "second call on the same day must not reset again")

	// 日期不会倒退
	usage, rolled, err = repo.Rollover(u.UserID, "2024-05-01")
	require.NoError(t, err)
	assert.False(t, rolled)
	assert.Equal(t, "2024-05-02", usage.LastReset)
}

func TestRecordExchangeNeverExceedsLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsageRepository(db)
	u := createUser(t, db, "agus")
	day := "2024-06-10"

	for i := 1; i <= 10; i++ {
		usage, err := repo.RecordExchange(newConv(u.UserID, fmt.Sprintf("q%d", i), time.Now()), day, 10)
		require.NoError(t, err)
		assert.Equal(t, i, usage.DailyCount)
	}

	conv := newConv(u.UserID, "q11", time.Now())
	_, err := repo.RecordExchange(conv, day, 10)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	usage, err := repo.Get(u.UserID)
	require.NoError(t, err)
	assert.Equal(t, 10, usage.DailyCount)

	var logged int64
	require.NoError(t, db.Model(&model.Conversation{}).Where("user_id = ?", u.UserID).Count(&logged).Error)
	assert.Equal(t, int64(10), logged, "the rejected exchange must not be logged")
}

func TestRecordExchangeRollsBackOnLogFailure(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsageRepository(db)
	u := createUser(t, db, "wati")
	day := "2024-06-10"

	first := newConv(u.UserID, "jagung", time.Now())
	_, err := repo.RecordExchange(first, day, 10)
	require.NoError(t, err)

	// 主键冲突使插入失败，计数必须随事务一起回滚
	dup := newConv(u.UserID, "jagung lagi", time.Now())
	dup.ConvID = first.ConvID
	_, err = repo.RecordExchange(dup, day, 10)
	require.Error(t, err)

	usage, err := repo.Get(u.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCount)
	assert.Equal(t, 1, usage.TotalUsage)
}

func TestRecordExchangeAcrossMidnightResetsFirst(t *testing.T) {
	db := newTestDB(t)
	repo := NewUsageRepository(db)
	u := createUser(t, db, "rina")

	for i := 0; i < 10; i++ {
		_, err := repo.RecordExchange(newConv(u.UserID, "cabai", time.Now()), "2024-06-10", 10)
		require.NoError(t, err)
	}
	usage, err := repo.RecordExchange(newConv(u.UserID, "cabai", time.Now()), "2024-06-11", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.DailyCount)
	assert.Equal(t, "2024-06-11", usage.LastReset)
	assert.Equal(t, 11, usage.TotalUsage)
}

func TestConversationListAndSearch(t *testing.T) {
	db := newTestDB(t)
	usageRepo := NewUsageRepository(db)
	convRepo := NewConversationRepository(db)
	u := createUser(t, db, "joko")
	other := createUser(t, db, "lain")

	base := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	inputs := []string{"pupuk cabai", "hama wereng", "100% organik"}
	for i, in := range inputs {
		_, err := usageRepo.RecordExchange(newConv(u.UserID, in, base.Add(time.Duration(i)*time.Minute)), "2024-06-10", 10)
		require.NoError(t, err)
	}
	_, err := usageRepo.RecordExchange(newConv(other.UserID, "pupuk jagung", base), "2024-06-10", 10)
	require.NoError(t, err)

	page, total, err := convRepo.ListByUser(u.UserID, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 2)
	assert.Equal(t, "100% organik", page[0].UserInput, "newest first")

	found, err := convRepo.SearchByUser(u.UserID, "pupuk", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "pupuk cabai", found[0].UserInput)

	pct, err := convRepo.SearchByUser(u.UserID, "100%", 10)
	require.NoError(t, err)
	assert.Len(t, pct, 1)

	byIDs, err := convRepo.FindByIDs([]string{found[0].ConvID})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)
}

func TestPlantDiseaseFindByPlant(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&[]model.PlantDisease{
		{Name: "Antraknosa", Symptoms: "bercak hitam pada buah", AffectedPlants: "Cabai, Tomat"},
		{Name: "Blas", Symptoms: "bercak belah ketupat", AffectedPlants: "Padi"},
	}).Error)

	repo := NewPlantDiseaseRepository(db)
	got, err := repo.FindByPlant("cabai")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Antraknosa", got[0].Name)

	all, err := repo.FindByPlant("")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPlantDiseaseSeedIfEmpty(t *testing.T) {
	db := newTestDB(t)
	repo := NewPlantDiseaseRepository(db)
	seed := []model.PlantDisease{{Name: "Bulai", AffectedPlants: "jagung"}}

	n, err := repo.SeedIfEmpty(seed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.SeedIfEmpty([]model.PlantDisease{{Name: "Blas", AffectedPlants: "padi"}})
	require.NoError(t, err)
	assert.Zero(t, n)

	all, err := repo.FindByPlant("")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSessionRepositoryRoundTripAndTrim(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewSessionRepository(rdb, 2)
	ctx := context.Background()

	_, err := repo.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	sess := &model.Session{UserID: 7, Day: "2024-06-10", Turns: []model.ChatTurn{
		{Role: model.RoleUser, Text: "a"},
		{Role: model.RoleAssistant, Text: "b"},
		{Role: model.RoleUser, Text: "c"},
	}}
	require.NoError(t, repo.Save(ctx, sess))
	assert.Len(t, sess.Turns, 3, "caller's session is not modified")

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "b", got.Turns[0].Text)
	assert.True(t, mr.TTL("session:7") > 0)

	require.NoError(t, repo.Delete(ctx, 7))
	_, err = repo.Get(ctx, 7)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
