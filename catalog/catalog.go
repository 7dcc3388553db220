package catalog

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrNoSuchTable = errors.New("table does not exist")

// Catalog keeps track of the tables of a database, mapping table ids to their storage handle, schema and primary
// key. It never stores data itself.
type Catalog interface {
	// AddTable registers file under name. A table with the same name or id is replaced. If name is empty a random
	// one is generated.
	AddTable(file DbFile, name string, primaryKey string) *TableInfo

	// Lookup returns everything known about the table with the given id.
	Lookup(tableID int) (*TableInfo, error)
	GetDatabaseFile(tableID int) (DbFile, error)
	GetSchema(tableID int) (Schema, error)
	GetPrimaryKey(tableID int) (string, error)
	GetTableName(tableID int) (string, error)
	GetTableID(name string) (int, error)
	TableIDs() []int
	Clear()
}

var _ Catalog = &InMemCatalog{}

type InMemCatalog struct {
	mu     sync.RWMutex
	tables map[int]*TableInfo
	names  map[string]int
}

func NewCatalog() *InMemCatalog {
	return &InMemCatalog{
		tables: map[int]*TableInfo{},
		names:  map[string]int{},
	}
}

func (c *InMemCatalog) AddTable(file DbFile, name string, primaryKey string) *TableInfo {
	if name == "" {
		name = uuid.New().String()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if oldID, ok := c.names[name]; ok {
		delete(c.tables, oldID)
	}
	if old, ok := c.tables[file.GetID()]; ok {
		delete(c.names, old.Name)
	}

	info := &TableInfo{
		Name:       name,
		PrimaryKey: primaryKey,
		File:       file,
	}
	c.tables[file.GetID()] = info
	c.names[name] = file.GetID()
	return info
}

func (c *InMemCatalog) Lookup(tableID int) (*TableInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.tables[tableID]
	if !ok {
		return nil, errors.Wrapf(ErrNoSuchTable, "table id: %d", tableID)
	}
	return info, nil
}

func (c *InMemCatalog) GetDatabaseFile(tableID int) (DbFile, error) {
	info, err := c.Lookup(tableID)
	if err != nil {
		return nil, err
	}
	return info.File, nil
}

func (c *InMemCatalog) GetSchema(tableID int) (Schema, error) {
	info, err := c.Lookup(tableID)
	if err != nil {
		return nil, err
	}
	return info.Schema(), nil
}

func (c *InMemCatalog) GetPrimaryKey(tableID int) (string, error) {
	info, err := c.Lookup(tableID)
	if err != nil {
		return "", err
	}
	return info.PrimaryKey, nil
}

func (c *InMemCatalog) GetTableName(tableID int) (string, error) {
	info, err := c.Lookup(tableID)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

func (c *InMemCatalog) GetTableID(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	id, ok := c.names[name]
	if !ok {
		return 0, errors.Wrapf(ErrNoSuchTable, "table name: %q", name)
	}
	return id, nil
}

// TableIDs returns the registered table ids in ascending order.
func (c *InMemCatalog) TableIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]int, 0, len(c.tables))
	for id := range c.tables {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (c *InMemCatalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tables = map[int]*TableInfo{}
	c.names = map[string]int{}
}
