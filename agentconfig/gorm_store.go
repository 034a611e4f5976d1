package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentcmd/types"
)

// agentRecord is one row per configured agent.
type agentRecord struct {
	Name      string `gorm:"primaryKey;size:128"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (agentRecord) TableName() string { return "agents" }

// agentCommandRecord is one row per agent and command.
type agentCommandRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Agent     string `gorm:"size:128;not null;uniqueIndex:idx_agent_command"`
	Command   string `gorm:"size:255;not null;uniqueIndex:idx_agent_command"`
	Enabled   bool   `gorm:"not null"`
	UpdatedAt time.Time
}

func (agentCommandRecord) TableName() string { return "agent_commands" }

// GormStore persists configurations in a SQL database through gorm.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore migrates the schema and returns a store on db.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&agentRecord{}, &agentCommandRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate agent config tables: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, agent string) (types.CommandConfig, error) {
	db := s.db.WithContext(ctx)

	var rec agentRecord
	if err := db.Where("name = ?", agent).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(agent)
		}
		return nil, fmt.Errorf("failed to load agent %s: %w", agent, err)
	}

	var rows []agentCommandRecord
	if err := db.Where("agent = ?", agent).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load commands of %s: %w", agent, err)
	}

	cfg := make(types.CommandConfig, len(rows))
	for _, row := range rows {
		cfg[row.Command] = row.Enabled
	}
	return cfg, nil
}

func (s *GormStore) Put(ctx context.Context, agent string, cfg types.CommandConfig) error {
	if err := validAgent(agent); err != nil {
		return err
	}

	flags := normalize(cfg)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertAgent(tx, agent); err != nil {
			return err
		}
		if err := tx.Where("agent = ?", agent).Delete(&agentCommandRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear commands of %s: %w", agent, err)
		}
		if len(flags) == 0 {
			return nil
		}

		rows := make([]agentCommandRecord, 0, len(flags))
		for command, enabled := range flags {
			rows = append(rows, agentCommandRecord{Agent: agent, Command: command, Enabled: enabled})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("failed to save commands of %s: %w", agent, err)
		}
		return nil
	})
}

func (s *GormStore) SetCommand(ctx context.Context, agent, command string, enabled bool) error {
	if err := validAgent(agent); err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertAgent(tx, agent); err != nil {
			return err
		}
		row := agentCommandRecord{Agent: agent, Command: command, Enabled: enabled}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "agent"}, {Name: "command"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return fmt.Errorf("failed to set command %s of %s: %w", command, agent, err)
		}
		return nil
	})
}

func (s *GormStore) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&agentRecord{}).Order("name").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (s *GormStore) Delete(ctx context.Context, agent string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("name = ?", agent).Delete(&agentRecord{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete agent %s: %w", agent, res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound(agent)
		}
		if err := tx.Where("agent = ?", agent).Delete(&agentCommandRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete commands of %s: %w", agent, err)
		}
		return nil
	})
}

func upsertAgent(tx *gorm.DB, agent string) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}).Create(&agentRecord{Name: agent}).Error
	if err != nil {
		return fmt.Errorf("failed to save agent %s: %w", agent, err)
	}
	return nil
}
