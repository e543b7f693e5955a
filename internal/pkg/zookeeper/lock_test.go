package zookeeper

import (
	"strings"
	"testing"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient 在内存里模拟锁路径下的节点队列。
type fakeClient struct {
	children    []string // 已在队列里的节点名（不含自己）
	childrenErr error

	createdNode string   // CreateProtectedEphemeralSequential 返回的节点名
	deleted     []string // Delete 被调用的路径
}

func (f *fakeClient) Exists(string) (bool, *zk.Stat, error) {
	return true, nil, nil
}

func (f *fakeClient) ExistsW(string) (bool, *zk.Stat, <-chan zk.Event, error) {
	// 返回一个永远不触发的 watch，模拟持有者一直不放锁
	return true, nil, make(chan zk.Event), nil
}

func (f *fakeClient) Create(path string, _ []byte, _ int32, _ []zk.ACL) (string, error) {
	return path, nil
}

func (f *fakeClient) CreateProtectedEphemeralSequential(path string, _ []byte, _ []zk.ACL) (string, error) {
	return strings.TrimSuffix(path, "lock-") + f.createdNode, nil
}

func (f *fakeClient) Children(string) ([]string, *zk.Stat, error) {
	if f.childrenErr != nil {
		return nil, nil, f.childrenErr
	}
	all := append([]string{}, f.children...)
	all = append(all, f.createdNode)
	return all, nil, nil
}

func (f *fakeClient) Delete(path string, _ int32) error {
	f.deleted = append(f.deleted, path)
	return nil
}

func TestDistributedLock_AcquiresWhenFirstInQueue(t *testing.T) {
	client := &fakeClient{createdNode: "_c_a-lock-0000000001"}

	lock, err := NewDistributedLock(client, "Game1-A_B")
	require.NoError(t, err)

	require.NoError(t, lock.Lock(time.Second))
	assert.Empty(t, client.deleted)

	require.NoError(t, lock.Unlock())
	assert.Equal(t, []string{lockRoot + "/Game1-A_B/_c_a-lock-0000000001"}, client.deleted)
}

func TestDistributedLock_TimeoutRemovesQueueNode(t *testing.T) {
	// 前面有一个一直不释放的持有者
	client := &fakeClient{
		children:    []string{"_c_a-lock-0000000001"},
		createdNode: "_c_b-lock-0000000002",
	}

	lock, err := NewDistributedLock(client, "Game1-A_B")
	require.NoError(t, err)

	err = lock.Lock(10 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	// 超时后自己的排队节点必须被删掉，
	// 否则后来的等待者会一直监听这个没人会删的节点
	assert.Equal(t, []string{lockRoot + "/Game1-A_B/_c_b-lock-0000000002"}, client.deleted)

	// 节点已清理，重复 Unlock 不应再去删任何东西
	assert.Error(t, lock.Unlock())
	assert.Len(t, client.deleted, 1)
}

func TestDistributedLock_ChildrenErrorRemovesQueueNode(t *testing.T) {
	client := &fakeClient{
		createdNode: "_c_b-lock-0000000002",
		childrenErr: zk.ErrConnectionClosed,
	}

	lock, err := NewDistributedLock(client, "Game1-A_B")
	require.NoError(t, err)

	err = lock.Lock(time.Second)
	require.Error(t, err)
	assert.Equal(t, []string{lockRoot + "/Game1-A_B/_c_b-lock-0000000002"}, client.deleted)
}
