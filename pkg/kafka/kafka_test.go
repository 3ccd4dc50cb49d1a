package kafka

import (
    "context"
    "errors"
    "testing"
    "time"

    "github.com/segmentio/kafka-go"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
    b, err := Encode([]byte("raw"))
    require.NoError(t, err)
    assert.Equal(t, "raw", string(b))

    b, err = Encode(map[string]float64{"price": 19.5})
    require.NoError(t, err)
    assert.JSONEq(t, `{"price":19.5}`, string(b))

    _, err = Encode(make(chan int))
    assert.Error(t, err)
}

func TestDecode(t *testing.T) {
    var out struct {
        ProductID string `json:"product_id"`
    }
    require.NoError(t, Decode([]byte(`{"product_id":"P001"}`), &out))
    assert.Equal(t, "P001", out.ProductID)
    assert.Error(t, Decode(nil, &out))
    assert.Error(t, Decode([]byte("{"), &out))
}

func TestBackoffWithJitterBounds(t *testing.T) {
    min, max := 100*time.Millisecond, time.Second
    for attempt := 1; attempt <= 40; attempt++ {
        d := backoffWithJitter(min, max, attempt)
        assert.Greater(t, d, time.Duration(0))
        assert.LessOrEqual(t, d, max)
    }
    d := backoffWithJitter(min, max, 1)
    assert.GreaterOrEqual(t, d, min/2)
    assert.LessOrEqual(t, d, min)
}

func TestHookChainOrderAndPanic(t *testing.T) {
    var calls []string
    first := HookFuncs{
        Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
            calls = append(calls, "before1")
            return WithTraceID(ctx, "t-1"), km, data, nil
        },
        After: func(context.Context, string, kafka.Message, []byte, error) { calls = append(calls, "after1") },
    }
    second := HookFuncs{
        Before: func(ctx context.Context, _ string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
            calls = append(calls, "before2:"+TraceID(ctx))
            return ctx, km, data, nil
        },
        After: func(context.Context, string, kafka.Message, []byte, error) { panic("after panic") },
    }
    chain := NewHookChain(first, nil, second)

    ctx, _, _, err := chain.BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
    require.NoError(t, err)
    chain.AfterHandle(ctx, "t", kafka.Message{}, nil, nil)
    assert.Equal(t, []string{"before1", "before2:t-1", "after1"}, calls)

    boom := HookFuncs{Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
        panic("boom")
    }}
    _, _, _, err = NewHookChain(boom).BeforeHandle(context.Background(), "t", kafka.Message{}, nil)
    var he *HookError
    require.True(t, errors.As(err, &he))
    assert.Equal(t, "ERR_PANIC", he.Code)
}

func TestExtractTraceID(t *testing.T) {
    km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
    assert.Equal(t, "abc", ExtractTraceID(km))
    assert.Empty(t, ExtractTraceID(kafka.Message{}))
}

func TestConstructorsRequireBrokers(t *testing.T) {
    _, err := NewProducer()
    assert.Error(t, err)
    _, err = NewConsumer()
    assert.Error(t, err)

    p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithBatching(10, 0, time.Millisecond))
    require.NoError(t, err)
    assert.Equal(t, 10, p.writer.BatchSize)
    require.NoError(t, p.Close())
}
