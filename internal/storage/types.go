package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodtune/timeledger/internal/ledger"
	"github.com/tidwall/gjson"
)

// Reserved top-level keys of the family blob.
const (
	FamilyParentSettings = "parentSettings"
	FamilySystemSettings = "systemSettings"
)

// Profile identifies a child.
type Profile struct {
	Name     string `json:"name"`
	DeviceID string `json:"deviceId,omitempty"`
}

// ChildLimits are the parent-defined daily limits for a child.
type ChildLimits struct {
	Weekday       int `json:"weekday"`
	Weekend       int `json:"weekend"`
	MaxDailyTotal int `json:"maxDailyTotal"`
}

// BonusSetting configures how one activity earns bonus minutes.
type BonusSetting struct {
	Key             string
	MaxBonusMinutes int
	Ratio           float64
}

// BonusSettings keeps the parent-defined key order of the JSON object.
type BonusSettings []BonusSetting

type bonusSettingValue struct {
	MaxBonusMinutes int     `json:"maxBonusMinutes"`
	Ratio           float64 `json:"ratio"`
}

// Get looks up a setting by key.
func (b BonusSettings) Get(key string) (BonusSetting, bool) {
	for _, s := range b {
		if s.Key == key {
			return s, true
		}
	}
	return BonusSetting{}, false
}

// MarshalJSON encodes the settings as an object in slice order.
func (b BonusSettings) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(b), func(i int) (string, any) {
		return b[i].Key, bonusSettingValue{MaxBonusMinutes: b[i].MaxBonusMinutes, Ratio: b[i].Ratio}
	})
}

// UnmarshalJSON decodes an object preserving key order.
func (b *BonusSettings) UnmarshalJSON(data []byte) error {
	res, err := parseObject(data, "bonus settings")
	if err != nil || !res.Exists() {
		*b = nil
		return err
	}
	out := BonusSettings{}
	res.ForEach(func(key, value gjson.Result) bool {
		out = append(out, BonusSetting{
			Key:             key.String(),
			MaxBonusMinutes: int(value.Get("maxBonusMinutes").Int()),
			Ratio:           value.Get("ratio").Float(),
		})
		return true
	})
	*b = out
	return nil
}

// CatalogEntry is one key/label pair.
type CatalogEntry struct {
	Key   string
	Label string
}

// Catalog is an ordered key to label mapping, such as the device
// categories or the bonus activity labels.
type Catalog []CatalogEntry

// Label returns the label for key.
func (c Catalog) Label(key string) (string, bool) {
	for _, e := range c {
		if e.Key == key {
			return e.Label, true
		}
	}
	return "", false
}

// MarshalJSON encodes the catalog as an object in slice order.
func (c Catalog) MarshalJSON() ([]byte, error) {
	return marshalOrdered(len(c), func(i int) (string, any) {
		return c[i].Key, c[i].Label
	})
}

// UnmarshalJSON decodes an object preserving key order. Values may be
// plain labels or objects carrying a label field.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	res, err := parseObject(data, "catalog")
	if err != nil || !res.Exists() {
		*c = nil
		return err
	}
	out := Catalog{}
	res.ForEach(func(key, value gjson.Result) bool {
		label := value.String()
		if value.IsObject() {
			label = value.Get("label").String()
		}
		if label == "" {
			label = key.String()
		}
		out = append(out, CatalogEntry{Key: key.String(), Label: label})
		return true
	})
	*c = out
	return nil
}

// ParentSettings are the family-wide settings owned by the parent device.
type ParentSettings struct {
	SyncPassword         string    `json:"syncPassword,omitempty"`
	LastParentUpdate     time.Time `json:"lastParentUpdate,omitzero"`
	FamilyName           string    `json:"familyName,omitempty"`
	Timezone             string    `json:"timezone,omitempty"`
	ElectronicCategories Catalog   `json:"electronicCategories,omitempty"`
	BonusActivityTypes   Catalog   `json:"bonusActivityTypes,omitempty"`
	AppLockoutMessage    string    `json:"appLockoutMessage,omitempty"`
}

// SystemSettings are the family-wide defaults.
type SystemSettings struct {
	DefaultWeekdayTotal    int    `json:"defaultWeekdayTotal"`
	DefaultWeekendTotal    int    `json:"defaultWeekendTotal"`
	DefaultMaxDailyTotal   int    `json:"defaultMaxDailyTotal"`
	EnableNotifications    bool   `json:"enableNotifications"`
	DailyActivityResetTime string `json:"dailyActivityResetTime"`
	AppVersion             string `json:"appVersion"`
}

// ChildRecord is one child's entry in the family blob.
type ChildRecord struct {
	Profile        Profile                   `json:"profile"`
	Limits         ChildLimits               `json:"limits"`
	BonusSettings  BonusSettings             `json:"bonusSettings"`
	TodayData      *ledger.Ledger            `json:"todayData"`
	HistoricalData map[string]*ledger.Ledger `json:"historicalData"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt,omitzero"`
}

// Family is the remote blob: one record per child plus the reserved
// settings keys.
type Family struct {
	Children       map[string]*ChildRecord
	ParentSettings *ParentSettings
	SystemSettings *SystemSettings
}

// NewFamily returns an empty family blob.
func NewFamily() *Family {
	return &Family{Children: make(map[string]*ChildRecord)}
}

// Child returns the record for name, or nil.
func (f *Family) Child(name string) *ChildRecord {
	if f == nil || f.Children == nil {
		return nil
	}
	return f.Children[name]
}

// MarshalJSON flattens children and settings into one object.
func (f Family) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Children)+2)
	for name, child := range f.Children {
		out[name] = child
	}
	if f.ParentSettings != nil {
		out[FamilyParentSettings] = f.ParentSettings
	}
	if f.SystemSettings != nil {
		out[FamilySystemSettings] = f.SystemSettings
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the blob into children and reserved keys.
// Top-level values that are not objects are ignored.
func (f *Family) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode family: %w", err)
	}

	f.Children = make(map[string]*ChildRecord)
	for key, value := range raw {
		if !gjson.ParseBytes(value).IsObject() {
			continue
		}
		switch key {
		case FamilyParentSettings:
			var ps ParentSettings
			if err := json.Unmarshal(value, &ps); err != nil {
				return fmt.Errorf("decode parent settings: %w", err)
			}
			f.ParentSettings = &ps
		case FamilySystemSettings:
			var ss SystemSettings
			if err := json.Unmarshal(value, &ss); err != nil {
				return fmt.Errorf("decode system settings: %w", err)
			}
			f.SystemSettings = &ss
		default:
			var child ChildRecord
			if err := json.Unmarshal(value, &child); err != nil {
				return fmt.Errorf("decode child %q: %w", key, err)
			}
			if child.HistoricalData == nil {
				child.HistoricalData = make(map[string]*ledger.Ledger)
			}
			if child.TodayData != nil {
				child.TodayData.Normalize()
			}
			f.Children[key] = &child
		}
	}
	return nil
}

func marshalOrdered(n int, entry func(i int) (string, any)) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i := 0; i < n; i++ {
		key, value := entry(i)
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func parseObject(data []byte, what string) (gjson.Result, error) {
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("invalid %s: malformed JSON", what)
	}
	res := gjson.ParseBytes(data)
	if res.Type == gjson.Null {
		return gjson.Result{}, nil
	}
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("invalid %s: expected object", what)
	}
	return res, nil
}
