package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	v.Set("entities", []map[string]any{{"code": "main", "name": "Main"}})
	v.Set("chart_of_accounts", []map[string]any{{"code": "5100", "name": "Supplies", "category": "supplies"}})
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newTestViper())
	require.NoError(t, err)

	assert.Equal(t, 0.80, cfg.Thresholds.AutoAccept)
	assert.Equal(t, 0.90, cfg.Thresholds.Learn)
	assert.Equal(t, "10000", cfg.Thresholds.AutoApproveCeiling.String())
	assert.Equal(t, []int{70, 90, 100}, cfg.Thresholds.AlertPercents)
	assert.Equal(t, 0.01, cfg.Duplicate.AmountTolerance)
	assert.Equal(t, 3, cfg.Anomaly.MinSampleMonths)
	assert.Equal(t, "10000", cfg.Anomaly.NewMerchantReview.String())
	assert.Equal(t, "50000", cfg.Anomaly.NewMerchantBlock.String())
	assert.True(t, cfg.EnforceBudgetBlock)
}

func TestLoad_DecimalFromString(t *testing.T) {
	v := newTestViper()
	v.Set("thresholds.auto_approve_ceiling", "12500.50")

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "12500.5", cfg.Thresholds.AutoApproveCeiling.String())
}

func TestLoad_DecimalFromNumber(t *testing.T) {
	v := newTestViper()
	v.Set("anomaly.new_merchant_review", 7500)
	v.Set("anomaly.round_amount_unit", 5000.0)

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "7500", cfg.Anomaly.NewMerchantReview.String())
	assert.Equal(t, "5000", cfg.Anomaly.RoundAmountUnit.String())
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*viper.Viper)
	}{
		{"no entities", func(v *viper.Viper) { v.Set("entities", []map[string]any{}) }},
		{"no accounts", func(v *viper.Viper) { v.Set("chart_of_accounts", []map[string]any{}) }},
		{"auto_accept out of range", func(v *viper.Viper) { v.Set("thresholds.auto_accept", 1.5) }},
		{"descending percents", func(v *viper.Viper) { v.Set("thresholds.alert_percents", []int{90, 70}) }},
		{"duplicate percents", func(v *viper.Viper) { v.Set("thresholds.alert_percents", []int{70, 70}) }},
		{"negative tolerance", func(v *viper.Viper) { v.Set("duplicate.amount_tolerance", -0.1) }},
		{"descending override percents", func(v *viper.Viper) {
			v.Set("alert_overrides", []map[string]any{
				{"entity": "main", "percents": []int{100, 90, 70}},
			})
		}},
		{"empty override percents", func(v *viper.Viper) {
			v.Set("alert_overrides", []map[string]any{
				{"entity": "main", "account_code": "5100", "percents": []int{}},
			})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestViper()
			tt.mutate(v)
			_, err := Load(v)
			assert.Error(t, err)
		})
	}
}

func TestAlertPercentsFor_Overrides(t *testing.T) {
	v := newTestViper()
	v.Set("alert_overrides", []map[string]any{
		{"entity": "main", "percents": []int{50, 80}},
		{"entity": "main", "account_code": "5100", "percents": []int{95}},
	})

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, []int{95}, cfg.AlertPercentsFor("main", "5100"), "account override wins")
	assert.Equal(t, []int{50, 80}, cfg.AlertPercentsFor("main", "5200"), "entity override applies")
	assert.Equal(t, []int{70, 90, 100}, cfg.AlertPercentsFor("other", "5100"), "global default otherwise")
}

func TestStore_SnapshotIsStable(t *testing.T) {
	v := newTestViper()
	cfg, err := Load(v)
	require.NoError(t, err)

	store := NewStore(cfg, v)
	snap := store.Snapshot()
	assert.Same(t, cfg, snap)
	assert.True(t, snap.HasEntity("main"))
	assert.False(t, snap.HasEntity("ghost"))
}
