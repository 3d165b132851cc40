package model

import (
	"time"

	"github.com/aisgo/ais-workspace/database"
)

// Project 项目，归集任务与文档
type Project struct {
	ScopedModel
	Name        string `json:"name" gorm:"size:200;not null"`
	Description string `json:"description" gorm:"type:text"`
	Status      string `json:"status" gorm:"size:32;default:active"`
}

// Task 看板卡片；Position 为同一状态列内的排序
type Task struct {
	ScopedModel
	ProjectID  *string        `json:"project_id" gorm:"type:char(26);index"`
	Title      string         `json:"title" gorm:"size:300;not null"`
	Status     string         `json:"status" gorm:"size:32;not null;default:todo;index"`
	Priority   string         `json:"priority" gorm:"size:16;default:medium"`
	AssigneeID *string        `json:"assignee_id" gorm:"type:char(26)"`
	Position   int            `json:"position" gorm:"not null;default:0"`
	DueAt      *time.Time     `json:"due_at"`
	Labels     database.JSONB `json:"labels"`
}

// Document 文档
type Document struct {
	ScopedModel
	ProjectID *string        `json:"project_id" gorm:"type:char(26);index"`
	Title     string         `json:"title" gorm:"size:300;not null"`
	Content   string         `json:"content" gorm:"type:text"`
	FolderID  *string        `json:"folder_id" gorm:"type:char(26)"`
	Metadata  database.JSONB `json:"metadata"`
}

// Assignment 作业
type Assignment struct {
	ScopedModel
	ProjectID *string    `json:"project_id" gorm:"type:char(26);index"`
	Title     string     `json:"title" gorm:"size:300;not null"`
	Course    string     `json:"course" gorm:"size:128"`
	Status    string     `json:"status" gorm:"size:32;default:assigned"`
	DueAt     *time.Time `json:"due_at"`
	Grade     *float64   `json:"grade"`
}

// Note 笔记
type Note struct {
	ScopedModel
	Title  string `json:"title" gorm:"size:300"`
	Body   string `json:"body" gorm:"type:text"`
	Pinned bool   `json:"pinned" gorm:"not null;default:false"`
}

// ChatSession 团队会话
type ChatSession struct {
	ScopedModel
	Title         string     `json:"title" gorm:"size:200"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// Message 会话消息
type Message struct {
	ScopedModel
	ChatSessionID string `json:"chat_session_id" gorm:"type:char(26);not null;index"`
	SenderID      string `json:"sender_id" gorm:"type:char(26);not null"`
	Role          string `json:"role" gorm:"size:16;default:user"`
	Body          string `json:"body" gorm:"type:text;not null"`
}

// AllModels 返回需要迁移的全部模型
func AllModels() []any {
	return []any{
		&Principal{}, &Workspace{}, &Membership{},
		&Project{}, &Task{}, &Document{}, &Assignment{}, &Note{}, &ChatSession{}, &Message{},
	}
}
