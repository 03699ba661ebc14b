package events

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/tron-indexer-go/pkg/types"
)

func startBus(t *testing.T, history int) *EventBus {
	t.Helper()
	bus := NewEventBus(16, history)
	bus.SetMetrics(NewMetrics(nil))
	go bus.Run()
	t.Cleanup(bus.Stop)
	return bus
}

func txEvent(id string, number uint64, tx types.ClassifiedTransaction) *TransactionEvent {
	tx.ID = id
	return NewTransactionEvent(tx, types.BlockContext{Number: number})
}

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e := <-sub.Channel:
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := startBus(t, 10)
	sub := bus.Subscribe("s1", []EventType{EventTypeBlock}, nil, 4)
	require.NotNil(t, sub)

	require.True(t, bus.Publish(NewBlockEvent(&types.ChainBlock{Number: 7})))

	e := receive(t, sub)
	require.IsType(t, &BlockEvent{}, e)
	assert.Equal(t, uint64(7), e.(*BlockEvent).Number)

	assert.Eventually(t, func() bool {
		total, delivered, _ := bus.Stats()
		return total == 1 && delivered == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriptionFilter(t *testing.T) {
	bus := startBus(t, 10)
	sub := bus.Subscribe("deleg", []EventType{EventTypeTransaction}, &Filter{
		Topics: []string{types.TopicDelegation},
	}, 4)
	require.NotNil(t, sub)

	bus.Publish(txEvent("t", 1, types.ClassifiedTransaction{NotificationTopics: []string{types.TopicTransfer}}))
	bus.Publish(txEvent("d", 1, types.ClassifiedTransaction{NotificationTopics: []string{types.TopicDelegation}}))

	e := receive(t, sub)
	assert.Equal(t, "d", e.(*TransactionEvent).Tx.ID)
}

func TestHandleTransactionBridge(t *testing.T) {
	bus := startBus(t, 10)
	sub := bus.Subscribe("all", []EventType{EventTypeTransaction}, nil, 4)

	tx := types.ClassifiedTransaction{ID: "abc", Type: types.TxTransfer, NotificationTopics: []string{types.TopicTransfer}}
	require.NoError(t, bus.HandleTransaction(context.Background(), tx, types.BlockContext{Number: 100}))

	e := receive(t, sub).(*TransactionEvent)
	assert.Equal(t, "abc", e.Tx.ID)
	assert.Equal(t, uint64(100), e.Block.Number)
}

func TestReplayLast(t *testing.T) {
	bus := startBus(t, 3)
	for i := uint64(1); i <= 5; i++ {
		require.True(t, bus.Publish(NewBlockEvent(&types.ChainBlock{Number: i})))
	}
	require.Eventually(t, func() bool {
		total, _, _ := bus.Stats()
		return total == 5
	}, time.Second, 5*time.Millisecond)

	sub := bus.SubscribeWithOptions("late", []EventType{EventTypeBlock}, nil, SubscribeOptions{ReplayLast: 2, ChannelSize: 8})
	require.NotNil(t, sub)

	assert.Equal(t, uint64(4), receive(t, sub).(*BlockEvent).Number)
	assert.Equal(t, uint64(5), receive(t, sub).(*BlockEvent).Number)
}

func TestSlowSubscriberDrops(t *testing.T) {
	bus := startBus(t, 10)
	sub := bus.Subscribe("slow", []EventType{EventTypeBlock}, nil, 1)

	for i := uint64(1); i <= 3; i++ {
		bus.Publish(NewBlockEvent(&types.ChainBlock{Number: i}))
	}
	require.Eventually(t, func() bool {
		_, _, dropped := bus.Stats()
		return dropped == 2
	}, time.Second, 5*time.Millisecond)

	info := bus.GetSubscriberInfo("slow")
	require.NotNil(t, info)
	assert.Equal(t, uint64(1), info.EventsReceived)
	assert.Equal(t, uint64(2), info.EventsDropped)
	assert.Equal(t, uint64(1), receive(t, sub).(*BlockEvent).Number)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := startBus(t, 10)
	sub := bus.Subscribe("x", []EventType{EventTypeBlock}, nil, 1)
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Unsubscribe("x")
	_, open := <-sub.Channel
	assert.False(t, open)
	assert.Equal(t, 0, bus.SubscriberCount())
	assert.Nil(t, bus.GetSubscriberInfo("x"))
}

func TestInvalidFilterRejected(t *testing.T) {
	bus := startBus(t, 10)
	sub := bus.Subscribe("bad", []EventType{EventTypeBlock}, &Filter{FromBlock: 10, ToBlock: 5}, 1)
	assert.Nil(t, sub)
}

func TestPublishAfterStop(t *testing.T) {
	bus := NewEventBus(1, 1)
	go bus.Run()
	bus.Stop()

	assert.False(t, bus.Publish(NewBlockEvent(&types.ChainBlock{Number: 1})))
	assert.Nil(t, bus.Subscribe("x", []EventType{EventTypeBlock}, nil, 1))
}

func TestFilterMatchTransaction(t *testing.T) {
	tx := types.ClassifiedTransaction{
		Type:               types.TxDelegateResource,
		Participants:       types.Participants{From: "TFrom", To: "TTo"},
		Amount:             big.NewInt(500),
		NotificationTopics: []string{types.TopicDelegation},
	}
	event := NewTransactionEvent(tx, types.BlockContext{Number: 50})

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"topic", Filter{Topics: []string{types.TopicDelegation}}, true},
		{"other topic", Filter{Topics: []string{types.TopicTransfer}}, false},
		{"type", Filter{TxTypes: []types.TxType{types.TxDelegateResource}}, true},
		{"other type", Filter{TxTypes: []types.TxType{types.TxTransfer}}, false},
		{"address to", Filter{Addresses: []string{"TTo"}}, true},
		{"address none", Filter{Addresses: []string{"TNobody"}}, false},
		{"min amount", Filter{MinAmount: big.NewInt(500)}, true},
		{"min amount above", Filter{MinAmount: big.NewInt(501)}, false},
		{"block range", Filter{FromBlock: 40, ToBlock: 60}, true},
		{"block range before", Filter{FromBlock: 51}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(event))
		})
	}
}

func TestFilterCloneAndEmpty(t *testing.T) {
	f := &Filter{Topics: []string{"a"}, MinAmount: big.NewInt(1)}
	c := f.Clone()
	c.Topics[0] = "b"
	c.MinAmount.SetInt64(9)

	assert.Equal(t, "a", f.Topics[0])
	assert.Equal(t, int64(1), f.MinAmount.Int64())
	assert.False(t, f.IsEmpty())
	assert.True(t, (&Filter{}).IsEmpty())

	assert.Error(t, (&Filter{MinAmount: big.NewInt(-1)}).Validate())
}
