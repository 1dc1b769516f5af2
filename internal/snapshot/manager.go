package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ethrank/pkg/models"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

const (
	// 默认数据库路径
	DefaultDBPath = "./data/snapshots.db"

	// 存储桶名称
	SnapshotBucket = "snapshots"
	MetaBucket     = "meta"

	// 最新快照ID键
	LatestIDKey = "latest_id"
)

// Snapshot 一次扫描的持久化结果
type Snapshot struct {
	ID      uint64         `json:"id"`
	SavedAt time.Time      `json:"saved_at"`
	Report  *models.Report `json:"report"`
}

// Manager 扫描快照管理器
type Manager struct {
	db     *bolt.DB
	logger *logrus.Logger
	dbPath string
	mu     sync.RWMutex

	// 最新快照缓存
	latest *Snapshot
}

// NewManager 创建快照管理器
func NewManager(dbPath string, logger *logrus.Logger) (*Manager, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 确保目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("打开快照数据库失败: %w", err)
	}

	manager := &Manager{
		db:     db,
		logger: logger,
		dbPath: dbPath,
	}

	if err := manager.initDB(); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	if err := manager.loadLatest(); err != nil {
		logger.Warnf("加载最新快照失败: %v", err)
	}

	logger.Infof("快照管理器已初始化，数据库路径: %s", dbPath)
	return manager, nil
}

// initDB 初始化数据库结构
func (m *Manager) initDB() error {
	return m.db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(SnapshotBucket)); err != nil {
			return fmt.Errorf("创建快照存储桶失败: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(MetaBucket)); err != nil {
			return fmt.Errorf("创建元数据存储桶失败: %w", err)
		}
		return nil
	})
}

// loadLatest 加载最新快照到缓存
func (m *Manager) loadLatest() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(MetaBucket)).Get([]byte(LatestIDKey))
		if data == nil {
			return nil
		}
		snap, err := getSnapshot(tx, binary.BigEndian.Uint64(data))
		if err != nil {
			return err
		}
		m.latest = snap
		return nil
	})
}

func idKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func getSnapshot(tx *bolt.Tx, id uint64) (*Snapshot, error) {
	data := tx.Bucket([]byte(SnapshotBucket)).Get(idKey(id))
	if data == nil {
		return nil, nil
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("解析快照 %d 失败: %w", id, err)
	}
	return &snap, nil
}

// Save 保存扫描报告（包括因致命错误中断的部分报告），返回快照ID
func (m *Manager) Save(report *models.Report) (uint64, error) {
	if report == nil {
		return 0, fmt.Errorf("报告不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var snap *Snapshot
	err := m.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(SnapshotBucket))
		id, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("分配快照ID失败: %w", err)
		}

		snap = &Snapshot{ID: id, SavedAt: time.Now(), Report: report}
		data, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("序列化快照失败: %w", err)
		}

		if err := bucket.Put(idKey(id), data); err != nil {
			return fmt.Errorf("保存快照失败: %w", err)
		}
		return tx.Bucket([]byte(MetaBucket)).Put([]byte(LatestIDKey), idKey(id))
	})
	if err != nil {
		return 0, err
	}

	m.latest = snap
	if report.Partial {
		m.logger.Warnf("部分扫描结果已保存为快照 %d（区块 %d - %d）", snap.ID, report.StartBlock, report.EndBlock)
	} else {
		m.logger.Infof("扫描结果已保存为快照 %d（区块 %d - %d）", snap.ID, report.StartBlock, report.EndBlock)
	}
	return snap.ID, nil
}

// Latest 获取最新快照，没有快照时返回 nil
func (m *Manager) Latest() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latest
}

// Get 按ID获取快照，不存在时返回 nil, nil
func (m *Manager) Get(id uint64) (*Snapshot, error) {
	var snap *Snapshot
	err := m.db.View(func(tx *bolt.Tx) error {
		var err error
		snap, err = getSnapshot(tx, id)
		return err
	})
	return snap, err
}

// Count 快照数量
func (m *Manager) Count() (int, error) {
	var count int
	err := m.db.View(func(tx *bolt.Tx) error {
		count = tx.Bucket([]byte(SnapshotBucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// Reset 删除全部快照
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{SnapshotBucket, MetaBucket} {
			if tx.Bucket([]byte(name)) != nil {
				if err := tx.DeleteBucket([]byte(name)); err != nil {
					return fmt.Errorf("删除存储桶 %s 失败: %w", name, err)
				}
			}
			if _, err := tx.CreateBucket([]byte(name)); err != nil {
				return fmt.Errorf("重建存储桶 %s 失败: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.latest = nil
	m.logger.Info("快照已重置")
	return nil
}

// Close 关闭数据库
func (m *Manager) Close() error {
	if m.db != nil {
		m.logger.Info("关闭快照数据库")
		return m.db.Close()
	}
	return nil
}

// GetDBPath 获取数据库路径
func (m *Manager) GetDBPath() string {
	return m.dbPath
}
