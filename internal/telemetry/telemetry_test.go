package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/transfa/ido-service/internal/domain"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestMetrics_RecordOperation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOperation(ctx, domain.OpWithdraw, 10*time.Millisecond, 3, nil)
	m.RecordOperation(ctx, domain.OpJoin, time.Millisecond, 1, nil)
	m.RecordOperation(ctx, domain.OpJoin, time.Millisecond, 0, domain.ErrUserAlreadyJoined)

	sums := collectSums(t, reader)
	require.Equal(t, int64(3), sums["ido.operations.total"])
	require.Equal(t, int64(1), sums["ido.operations.failed"])
	require.Equal(t, int64(4), sums["ido.transfers.total"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordOperation(context.Background(), domain.OpClaim, time.Second, 1, nil)
	})
}

func TestNew_WithoutEndpoint(t *testing.T) {
	p, err := New(context.Background(), Config{})
	require.NoError(t, err)
	require.NotNil(t, p.Meter())
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewResource_CarriesServiceNameAlongsideSDKSchema(t *testing.T) {
	res, err := newResource(context.Background(), "ido-service-test")
	require.NoError(t, err)

	name, ok := res.Set().Value(attribute.Key("service.name"))
	require.True(t, ok)
	require.Equal(t, "ido-service-test", name.AsString())

	_, ok = res.Set().Value(attribute.Key("telemetry.sdk.name"))
	require.True(t, ok)
}

func TestNew_WithServiceName(t *testing.T) {
	p, err := New(context.Background(), Config{ServiceName: "ido-service-test"})
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestErrorKind(t *testing.T) {
	cases := map[error]string{
		nil:                            "none",
		domain.ErrUnauthorized:         "unauthorized",
		domain.ErrInvalidSalePeriod:    "invalid_schedule",
		domain.ErrInvalidPrice:         "invalid_economic_parameter",
		domain.Overflowf("total sold"): "arithmetic_overflow",
		domain.ErrSaleNotStarted:       "precondition_not_met",
		domain.ErrInsufficientFunds:    "insufficient_balance",
		domain.ErrNothingToClaim:       "nothing_to_do",
		domain.ErrCampaignNotFound:     "not_found",
		fmt.Errorf("connection reset"): "internal",
	}
	for err, expected := range cases {
		require.Equal(t, expected, ErrorKind(err), "error %v", err)
	}
}
