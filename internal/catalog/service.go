package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"schema-graph/internal/adapter"
	"schema-graph/internal/metrics"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service 元数据目录服务
//
// 读者通过 Snapshot() 拿到不可变快照，无需加锁；
// 写操作（Register/Scan/Forget/Import）串行化，先复制再整体替换快照。
type Service struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewService 创建目录服务
func NewService(logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{logger: logger, now: time.Now}
	s.current.Store(emptySnapshot())
	return s
}

// Snapshot 当前快照
func (s *Service) Snapshot() *Snapshot {
	return s.current.Load()
}

// Register 注册数据源，conn 为 nil 时只登记元数据（没有数据访问能力）
func (s *Service) Register(ctx context.Context, ds DataSource, conn adapter.DBAdapter) error {
	if ds.ID == "" {
		return errors.New("datasource id is required")
	}
	if conn != nil {
		if err := conn.Ping(ctx); err != nil {
			return errors.Wrapf(err, "ping datasource %q", ds.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	next.datasources[ds.ID] = ds
	if conn != nil {
		next.connectors[ds.ID] = conn
	} else {
		delete(next.connectors, ds.ID)
	}
	s.publish(next)

	s.logger.WithFields(logrus.Fields{
		"source": ds.ID,
		"type":   ds.Type,
	}).Info("datasource registered")
	return nil
}

// Forget 删除数据源及其元数据，并关闭连接
func (s *Service) Forget(sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if _, err := cur.Datasource(sourceID); err != nil {
		return err
	}

	next := cur.clone()
	conn := next.connectors[sourceID]
	next.dropSource(sourceID)
	delete(next.datasources, sourceID)
	delete(next.connectors, sourceID)
	s.publish(next)

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Close 关闭所有连接
func (s *Service) Close() error {
	var first error
	for id, conn := range s.Snapshot().connectors {
		if err := conn.Close(); err != nil && first == nil {
			first = errors.Wrapf(err, "close datasource %q", id)
		}
	}
	return first
}

// scanResult 一次扫描在锁外收集的结果
type scanResult struct {
	datasets       []Dataset
	tables         []Table
	columnsByTable map[string][]Column
}

// Scan 扫描数据源并发布新快照
//
// 数据源查询在锁外进行；单张表失败只记录日志，列出数据集失败则整体失败。
func (s *Service) Scan(ctx context.Context, sourceID string) (ScanStats, error) {
	start := s.now()
	stats, err := s.scan(ctx, sourceID)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ScansTotal.WithLabelValues(sourceID, status).Inc()
	metrics.ScanDuration.WithLabelValues(sourceID).Observe(time.Since(start).Seconds())
	return stats, err
}

func (s *Service) scan(ctx context.Context, sourceID string) (ScanStats, error) {
	snap := s.Snapshot()
	ds, err := snap.Datasource(sourceID)
	if err != nil {
		return ScanStats{}, err
	}
	conn, ok := snap.connectors[sourceID]
	if !ok || conn == nil {
		return ScanStats{}, errors.Wrapf(ErrNoConnector, "datasource %q", sourceID)
	}

	log := s.logger.WithField("source", sourceID)
	log.Info("scanning datasource")

	result, err := s.collect(ctx, ds, conn, log)
	if err != nil {
		return ScanStats{}, err
	}

	s.mu.Lock()
	next := s.current.Load().clone()
	if _, ok := next.datasources[sourceID]; !ok {
		// 扫描期间数据源被删除
		s.mu.Unlock()
		return ScanStats{}, notFound("datasource", sourceID, keys(next.datasources))
	}
	next.dropSource(sourceID)
	for _, d := range result.datasets {
		next.datasets[d.ID] = d
	}
	for _, t := range result.tables {
		next.tables[t.ID] = t
		next.columnsByTable[t.ID] = result.columnsByTable[t.ID]
	}
	s.publish(next)
	s.mu.Unlock()

	stats := ScanStats{Datasets: len(result.datasets), Tables: len(result.tables)}
	for _, cols := range result.columnsByTable {
		stats.Columns += len(cols)
	}
	log.WithFields(logrus.Fields{
		"datasets": stats.Datasets,
		"tables":   stats.Tables,
		"columns":  stats.Columns,
	}).Info("scan completed")
	return stats, nil
}

// collect 从连接读取数据集、表、列和外键
func (s *Service) collect(ctx context.Context, ds DataSource, conn adapter.DBAdapter, log logrus.FieldLogger) (*scanResult, error) {
	names, err := conn.ListDatasets(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "list datasets of %q", ds.ID)
	}

	result := &scanResult{columnsByTable: make(map[string][]Column)}
	for _, name := range names {
		datasetID := DatasetID(ds.ID, name)
		result.datasets = append(result.datasets, Dataset{ID: datasetID, Name: name, DataSourceID: ds.ID})

		tables, err := conn.ListTables(ctx, name)
		if err != nil {
			log.WithError(err).WithField("dataset", name).Warn("list tables failed, dataset skipped")
			continue
		}

		fks, err := conn.GetForeignKeys(ctx, name)
		if err != nil {
			log.WithError(err).WithField("dataset", name).Warn("foreign keys unavailable")
			fks = nil
		}
		refs := make(map[string]string, len(fks))
		for _, fk := range fks {
			refs[fk.FromTable+"."+fk.FromColumn] = TableID(datasetID, fk.ToTable) + "." + fk.ToColumn
		}

		for _, tm := range tables {
			tableID := TableID(datasetID, tm.Name)
			result.tables = append(result.tables, Table{
				ID:           tableID,
				Name:         tm.Name,
				DatasetID:    datasetID,
				DataSourceID: ds.ID,
				NumRows:      tm.NumRows,
				Type:         tm.Type,
			})

			columns, err := conn.GetSchema(ctx, name, tm.Name)
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{
					"dataset": name,
					"table":   tm.Name,
				}).Warn("get schema failed, table kept without columns")
				continue
			}

			cols := make([]Column, 0, len(columns))
			for _, cm := range columns {
				c := Column{
					ID:           ColumnID(tableID, cm.Name),
					Name:         cm.Name,
					TableID:      tableID,
					Datatype:     cm.DataType,
					IsNullable:   cm.Nullable,
					IsPrimaryKey: cm.IsPrimaryKey,
					Description:  cm.Description,
				}
				if ref, ok := refs[tm.Name+"."+cm.Name]; ok {
					c.IsForeignKey = true
					c.ForeignKeyRef = ref
				}
				cols = append(cols, c)
			}
			result.columnsByTable[tableID] = cols
		}
	}
	return result, nil
}

// ScanAll 并发扫描所有有连接的数据源，limit <= 0 时不限制并发
func (s *Service) ScanAll(ctx context.Context, limit int) (map[string]ScanStats, error) {
	snap := s.Snapshot()

	var (
		mu      sync.Mutex
		results = make(map[string]ScanStats)
	)
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, ds := range snap.ListDatasources() {
		if snap.connectors[ds.ID] == nil {
			continue
		}
		id := ds.ID
		g.Go(func() error {
			stats, err := s.Scan(gctx, id)
			if err != nil {
				return err
			}
			mu.Lock()
			results[id] = stats
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Import 导入外部提供的元数据（不经过连接），替换该数据源原有的元数据
func (s *Service) Import(ds DataSource, datasets []Dataset, tables []Table, columns []Column) error {
	if ds.ID == "" {
		return errors.New("datasource id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	next.datasources[ds.ID] = ds
	next.dropSource(ds.ID)
	for _, d := range datasets {
		d.DataSourceID = ds.ID
		next.datasets[d.ID] = d
	}
	for _, t := range tables {
		t.DataSourceID = ds.ID
		if _, ok := next.datasets[t.DatasetID]; !ok {
			return notFound("dataset", t.DatasetID, keys(next.datasets))
		}
		next.tables[t.ID] = t
		next.columnsByTable[t.ID] = nil
	}
	for _, c := range columns {
		// 只接受本次导入的表，避免追加到其他快照共享的切片
		if t, ok := next.tables[c.TableID]; !ok || t.DataSourceID != ds.ID {
			return notFound("table", c.TableID, keys(next.tables))
		}
		next.columnsByTable[c.TableID] = append(next.columnsByTable[c.TableID], c)
	}
	s.publish(next)
	return nil
}

// publish 设置版本并替换快照，调用方持有 mu
func (s *Service) publish(next *Snapshot) {
	next.Version = uuid.NewString()
	next.UpdatedAt = s.now()
	s.current.Store(next)
}
