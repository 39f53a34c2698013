package broker

import (
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTopologyDeclarer records the calls declareSourceTopology makes,
// so the publish/consume topology fix can be exercised without a live
// broker connection.
type fakeTopologyDeclarer struct {
	exchangeDeclared string
	queueDeclared    string
	bound            [3]string // queue, key, exchange

	exchangeErr error
	queueErr    error
	bindErr     error
}

func (f *fakeTopologyDeclarer) ExchangeDeclare(name, _ string, _, _, _, _ bool, _ amqp.Table) error {
	f.exchangeDeclared = name
	return f.exchangeErr
}

func (f *fakeTopologyDeclarer) QueueDeclare(name string, _, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	f.queueDeclared = name
	return amqp.Queue{Name: name}, f.queueErr
}

func (f *fakeTopologyDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	f.bound = [3]string{name, key, exchange}
	return f.bindErr
}

func TestDeclareSourceTopologyDeclaresAndBinds(t *testing.T) {
	fake := &fakeTopologyDeclarer{}

	require.NoError(t, declareSourceTopology(fake, "remote-1"))

	assert.Equal(t, "remote-1", fake.exchangeDeclared)
	assert.Equal(t, "remote-1", fake.queueDeclared)
	assert.Equal(t, [3]string{"remote-1", "remote-1", "remote-1"}, fake.bound)
}

func TestDeclareSourceTopologyStopsOnExchangeDeclareError(t *testing.T) {
	fake := &fakeTopologyDeclarer{exchangeErr: errors.New("NOT_FOUND")}

	err := declareSourceTopology(fake, "remote-1")
	require.Error(t, err)
	assert.Empty(t, fake.queueDeclared, "queue must not be declared once the exchange declare fails")
	assert.Zero(t, fake.bound)
}

func TestDeclareSourceTopologyStopsOnQueueBindError(t *testing.T) {
	fake := &fakeTopologyDeclarer{bindErr: errors.New("bind failed")}

	err := declareSourceTopology(fake, "remote-1")
	require.Error(t, err)
	assert.Equal(t, "remote-1", fake.exchangeDeclared)
	assert.Equal(t, "remote-1", fake.queueDeclared)
}
