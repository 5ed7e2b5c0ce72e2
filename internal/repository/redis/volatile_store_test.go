package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/client"
	"github.com/sistemasHooP/POTAL-JURIDICO---GPT-IA-sub000/internal/repository"
)

func newMockStore(t *testing.T) (*VolatileStore, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	return NewVolatileStore(&client.RedisClient{Client: db}), mock
}

func TestVolatileStoreGet(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectGet("rl:login:ana@firm.com").SetVal(`{"windowStart":1,"count":2}`)

	val, err := store.Get(ctx, "rl:login:ana@firm.com")
	require.NoError(t, err)
	assert.JSONEq(t, `{"windowStart":1,"count":2}`, string(val))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreGetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectGet("rl_lock:login:ana@firm.com").RedisNil()

	_, err := store.Get(context.Background(), "rl_lock:login:ana@firm.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreGetError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectGet("rl:api:10.0.0.1").SetErr(errors.New("connection reset"))

	_, err := store.Get(context.Background(), "rl:api:10.0.0.1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStorePutWithTTL(t *testing.T) {
	store, mock := newMockStore(t)
	value := []byte(`{"unlockAt":1700000000000}`)

	mock.ExpectSet("rl_lock:login:ana@firm.com", value, 15*time.Minute).SetVal("OK")

	err := store.PutWithTTL(context.Background(), "rl_lock:login:ana@firm.com", value, 15*time.Minute)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStorePutWithTTLError(t *testing.T) {
	store, mock := newMockStore(t)
	value := []byte(`{}`)

	mock.ExpectSet("k", value, time.Minute).SetErr(errors.New("OOM"))

	err := store.PutWithTTL(context.Background(), "k", value, time.Minute)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreRemove(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectDel("rl:login:ana@firm.com", "rl_lock:login:ana@firm.com").SetVal(2)

	err := store.Remove(context.Background(), "rl:login:ana@firm.com", "rl_lock:login:ana@firm.com")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreRemoveNothing(t *testing.T) {
	store, mock := newMockStore(t)

	require.NoError(t, store.Remove(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreUpdateCommits(t *testing.T) {
	store, mock := newMockStore(t)
	key := "rl:login:ana@firm.com"

	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(`{"windowStart":1,"count":1}`)
	mock.ExpectTxPipeline()
	mock.ExpectSet(key, []byte(`{"windowStart":1,"count":2}`), 16*time.Minute).SetVal("OK")
	mock.ExpectTxPipelineExec()

	var seen string
	err := store.Update(context.Background(), key, 16*time.Minute, func(current []byte) ([]byte, error) {
		seen = string(current)
		return []byte(`{"windowStart":1,"count":2}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, `{"windowStart":1,"count":1}`, seen)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreUpdateMissingKey(t *testing.T) {
	store, mock := newMockStore(t)
	key := "rl:otp_send:12345678901"

	mock.ExpectWatch(key)
	mock.ExpectGet(key).RedisNil()
	mock.ExpectTxPipeline()
	mock.ExpectSet(key, []byte(`{"windowStart":5,"count":1}`), time.Minute).SetVal("OK")
	mock.ExpectTxPipelineExec()

	err := store.Update(context.Background(), key, time.Minute, func(current []byte) ([]byte, error) {
		assert.Nil(t, current)
		return []byte(`{"windowStart":5,"count":1}`), nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreUpdateRetriesAfterConcurrentWrite(t *testing.T) {
	store, mock := newMockStore(t)
	key := "rl:api:10.0.0.1"

	mock.ExpectWatch(key).SetErr(redis.TxFailedErr)
	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(`{"windowStart":1,"count":7}`)
	mock.ExpectTxPipeline()
	mock.ExpectSet(key, []byte(`{"windowStart":1,"count":8}`), 2*time.Minute).SetVal("OK")
	mock.ExpectTxPipelineExec()

	calls := 0
	err := store.Update(context.Background(), key, 2*time.Minute, func(current []byte) ([]byte, error) {
		calls++
		return []byte(`{"windowStart":1,"count":8}`), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreUpdateGivesUpOnContention(t *testing.T) {
	store, mock := newMockStore(t)
	key := "rl:login:ana@firm.com"

	for i := 0; i < maxUpdateRetries; i++ {
		mock.ExpectWatch(key).SetErr(redis.TxFailedErr)
	}

	err := store.Update(context.Background(), key, time.Minute, func(current []byte) ([]byte, error) {
		return []byte(`{}`), nil
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreUpdateNilLeavesKeyUntouched(t *testing.T) {
	store, mock := newMockStore(t)
	key := "rl_lock:login:ana@firm.com"

	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(`{"unlockAt":1700000000000}`)

	err := store.Update(context.Background(), key, time.Minute, func(current []byte) ([]byte, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVolatileStoreUpdateCallbackError(t *testing.T) {
	store, mock := newMockStore(t)
	key := "rl:login:ana@firm.com"
	boom := errors.New("corrupt record")

	mock.ExpectWatch(key)
	mock.ExpectGet(key).SetVal(`not json`)

	err := store.Update(context.Background(), key, time.Minute, func(current []byte) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, repository.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}
