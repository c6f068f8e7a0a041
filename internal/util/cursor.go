package util

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsUUID 校验 8-4-4-4-12 形式的十六进制 id
func IsUUID(s string) bool {
	return uuidPattern.MatchString(s)
}

// Cursor 键集分页的位置标记，来自上一页最后一行的 (排序时间, id)
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

type cursorPayload struct {
	CreatedAt string `json:"createdAt"`
	ID        string `json:"id"`
}

// EncodeCursor 生成不透明游标：base64(JSON{createdAt, id})
func EncodeCursor(t time.Time, id string) string {
	raw, _ := json.Marshal(cursorPayload{
		CreatedAt: t.UTC().Format(time.RFC3339Nano),
		ID:        id,
	})
	return base64.StdEncoding.EncodeToString(raw)
}

// invalidCursor 包装 ErrInvalidCursor，调用方可用 errors.Is 判断
func invalidCursor(field string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrInvalidCursor, field, cause)
}

// DecodeCursor 解析客户端传回的游标，空串返回 nil。任何解析失败都是 BadRequest。
func DecodeCursor(s string) (*Cursor, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// 未转义的游标放进 URL 时常被改写为 URL-safe 形式
		if raw, err = base64.URLEncoding.DecodeString(s); err != nil {
			return nil, invalidCursor("base64", err)
		}
	}

	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidCursor("json", err)
	}

	t, err := time.Parse(time.RFC3339Nano, p.CreatedAt)
	if err != nil {
		return nil, invalidCursor("createdAt", err)
	}
	if !IsUUID(p.ID) {
		return nil, invalidCursor("id", errors.New("not a uuid"))
	}

	return &Cursor{CreatedAt: t.UTC(), ID: p.ID}, nil
}

// CursorPage 一页键集分页结果
type CursorPage[T any] struct {
	Items      []T
	NextCursor *string
	HasMore    bool
}

// BuildCursorPage 组装一页：rows 是按 limit+1 查询的结果，多出的一行仅用于判断 hasMore，
// 下一页游标取自实际返回的最后一行。
func BuildCursorPage[T any](rows []T, limit int, key func(T) (time.Time, string)) CursorPage[T] {
	page := CursorPage[T]{Items: rows}
	if len(rows) > limit {
		page.HasMore = true
		page.Items = rows[:limit]
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	if page.HasMore && len(page.Items) > 0 {
		t, id := key(page.Items[len(page.Items)-1])
		next := EncodeCursor(t, id)
		page.NextCursor = &next
	}
	return page
}
