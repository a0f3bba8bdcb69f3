package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chachabrian/rentcar-backend/internal/models"
	"github.com/chachabrian/rentcar-backend/pkg/utils"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	settingsCacheKey        = "settings"
	DefaultSettingsCacheTTL = time.Hour

	passwordChangeKey = "admin_password_change"
	passwordAuditMask = "****"
	rememberTokenLen  = 60
)

// SettingsUpdate is one multi-key write. Values hold scalars, booleans or
// string lists keyed by setting; Files hold uploads for the file keys.
type SettingsUpdate struct {
	Values map[string]interface{}
	Files  map[string]Upload
}

type PasswordChange struct {
	CurrentPassword      string `json:"current_password" form:"current_password" validate:"required"`
	Password             string `json:"password" form:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation" validate:"eqfield=Password"`
}

// cachedSetting is the cache representation of a row. Secret rows never
// carry their stored value into the cache.
type cachedSetting struct {
	Key      string             `json:"k"`
	Type     models.SettingType `json:"t"`
	IsSecret bool               `json:"s"`
	Value    *string            `json:"v"`
}

// SettingsStore owns typed configuration, secret handling and the audit log.
type SettingsStore struct {
	db        *gorm.DB
	cache     Cache
	encrypter Encrypter
	files     FileStore
	clock     clock.Clock
	ttl       time.Duration
	log       *zap.Logger
}

func NewSettingsStore(db *gorm.DB, cache Cache, encrypter Encrypter, files FileStore, clk clock.Clock, log *zap.Logger) *SettingsStore {
	if clk == nil {
		clk = clock.WallClock
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SettingsStore{
		db:        db,
		cache:     cache,
		encrypter: encrypter,
		files:     files,
		clock:     clk,
		ttl:       DefaultSettingsCacheTTL,
		log:       log,
	}
}

// SetCacheTTL overrides how long a settings snapshot stays cached.
func (s *SettingsStore) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// All returns every setting as key -> typed value with secrets masked.
func (s *SettingsStore) All(ctx context.Context) (map[string]interface{}, error) {
	rows, err := s.snapshot(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}

	out := make(map[string]interface{}, len(rows))
	for _, r := range rows {
		setting := models.Setting{Key: r.Key, Type: r.Type, IsSecret: r.IsSecret, Value: r.Value}
		out[r.Key] = setting.TypedValue()
	}
	return out, nil
}

func (s *SettingsStore) snapshot(ctx context.Context) ([]cachedSetting, error) {
	data, ok, err := s.cache.Get(ctx, settingsCacheKey)
	if err != nil {
		s.log.Warn("settings cache read failed", zap.Error(err))
	}
	if ok {
		var rows []cachedSetting
		if err := json.Unmarshal(data, &rows); err == nil {
			return rows, nil
		}
		s.log.Warn("discarding undecodable settings cache entry")
	}

	var settings []models.Setting
	if err := s.db.WithContext(ctx).Order("id").Find(&settings).Error; err != nil {
		return nil, errors.Annotate(err, "loading settings")
	}

	rows := make([]cachedSetting, 0, len(settings))
	for _, st := range settings {
		row := cachedSetting{Key: st.Key, Type: st.Type, IsSecret: st.IsSecret, Value: st.Value}
		if st.IsSecret && st.Value != nil && *st.Value != "" {
			mask := models.SecretMask
			row.Value = &mask
		}
		rows = append(rows, row)
	}

	if encoded, err := json.Marshal(rows); err == nil {
		if err := s.cache.Set(ctx, settingsCacheKey, encoded, s.ttl); err != nil {
			s.log.Warn("settings cache write failed", zap.Error(err))
		}
	}
	return rows, nil
}

// Changes returns the newest audit rows first.
func (s *SettingsStore) Changes(ctx context.Context, limit int) ([]models.SettingChange, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var changes []models.SettingChange
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&changes).Error
	if err != nil {
		return nil, errors.Annotate(err, "loading settings changes")
	}
	return changes, nil
}

// Update applies a multi-key upsert in a single transaction and returns the
// keys whose stored value changed.
func (s *SettingsStore) Update(ctx context.Context, actor Actor, update SettingsUpdate) ([]string, error) {
	if !actor.HasRole(models.RoleAdmin, models.RoleOwner) {
		return nil, errors.Forbiddenf("settings are restricted to administrators")
	}

	values, err := validateSettings(update)
	if err != nil {
		return nil, err
	}

	var (
		changed  []string
		stored   []string
		obsolete []string
	)
	now := s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range settingFileKeys {
			file, ok := update.Files[key]
			if !ok {
				continue
			}

			path, err := s.files.Store(ctx, "settings", file)
			if err != nil {
				return errors.Annotatef(err, "storing %s", key)
			}
			stored = append(stored, path)

			existing, err := findSetting(tx, key)
			if err != nil {
				return err
			}
			old := existing.storedValue()
			if old != nil && *old != "" && *old != path {
				if exists, err := s.files.Exists(ctx, *old); err == nil && exists {
					obsolete = append(obsolete, *old)
				}
			}

			row := models.Setting{
				Key:      key,
				Value:    &path,
				Type:     models.SettingTypeString,
				Group:    GroupGeneral,
				IsSecret: false,
			}
			if err := upsertSetting(tx, existing, row); err != nil {
				return err
			}
			if err := appendChange(tx, key, old, &path, actor.ID, now); err != nil {
				return err
			}
			changed = append(changed, key)
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, key := range keys {
			repr, typ, err := representSetting(values[key])
			if err != nil {
				return invalidField(key, err.Error())
			}

			secret := IsSecretKey(key)
			if secret && repr == models.SecretMask {
				// The form echoed the masked value back; keep the stored secret.
				continue
			}
			toSave := repr
			if secret && repr != "" {
				if toSave, err = s.encrypter.Encrypt(repr); err != nil {
					return errors.Annotatef(err, "encrypting %s", key)
				}
			}

			existing, err := findSetting(tx, key)
			if err != nil {
				return err
			}
			old := existing.storedValue()
			if old != nil && *old == toSave {
				continue
			}

			row := models.Setting{
				Key:      key,
				Value:    &toSave,
				Type:     typ,
				Group:    ClassifyGroup(key),
				IsSecret: secret,
			}
			if err := upsertSetting(tx, existing, row); err != nil {
				return err
			}
			if err := appendChange(tx, key, old, &toSave, actor.ID, now); err != nil {
				return err
			}
			changed = append(changed, key)
		}
		return nil
	})
	if err != nil {
		for _, path := range stored {
			if derr := s.files.Delete(ctx, path); derr != nil {
				s.log.Warn("failed to remove upload of rolled back settings update", zap.String("path", path), zap.Error(derr))
			}
		}
		var verr *ValidationError
		if errors.As(err, &verr) {
			return nil, err
		}
		return nil, errors.Annotate(err, "updating settings")
	}

	for _, path := range obsolete {
		if err := s.files.Delete(ctx, path); err != nil {
			s.log.Warn("failed to delete replaced settings file", zap.String("path", path), zap.Error(err))
		}
	}
	s.invalidate(ctx)
	return changed, nil
}

// ChangePassword replaces the administrator's password and rotates the
// remember token so other persistent sessions stop validating.
func (s *SettingsStore) ChangePassword(ctx context.Context, actor Actor, in PasswordChange) (*models.User, error) {
	if !actor.HasRole(models.RoleAdmin) {
		return nil, errors.Forbiddenf("only the administrator may change this password")
	}

	v := validation{}
	if err := checkStruct(v, in); err != nil {
		return nil, err
	}
	if err := v.err(); err != nil {
		return nil, err
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, actor.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Unauthorizedf("user %d no longer exists", actor.ID)
		}
		return nil, errors.Annotate(err, "loading user")
	}

	if err := user.CheckPassword(in.CurrentPassword); err != nil {
		return nil, invalidField("current_password", "current password does not match")
	}

	if err := user.SetPassword(in.Password); err != nil {
		return nil, errors.Annotate(err, "hashing password")
	}
	token, err := utils.RandomToken(rememberTokenLen)
	if err != nil {
		return nil, errors.Annotate(err, "rotating remember token")
	}
	user.RememberToken = token

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Select("password", "remember_token").Updates(&user).Error; err != nil {
			return err
		}
		masked := passwordAuditMask
		return appendChange(tx, passwordChangeKey, nil, &masked, user.ID, s.clock.Now())
	})
	if err != nil {
		return nil, errors.Annotate(err, "saving password")
	}
	return &user, nil
}

func (s *SettingsStore) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, settingsCacheKey); err != nil {
		s.log.Error("settings cache invalidation failed", zap.Error(err))
	}
}

type existingSetting struct {
	row *models.Setting
}

// storedValue returns a copy of the stored value; the row itself is
// rewritten by upsertSetting.
func (e existingSetting) storedValue() *string {
	if e.row == nil || e.row.Value == nil {
		return nil
	}
	v := *e.row.Value
	return &v
}

func findSetting(tx *gorm.DB, key string) (existingSetting, error) {
	var row models.Setting
	err := tx.Where(&models.Setting{Key: key}).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return existingSetting{}, nil
	}
	if err != nil {
		return existingSetting{}, errors.Annotatef(err, "loading setting %s", key)
	}
	return existingSetting{row: &row}, nil
}

func upsertSetting(tx *gorm.DB, existing existingSetting, row models.Setting) error {
	if existing.row == nil {
		if err := tx.Create(&row).Error; err != nil {
			return errors.Annotatef(err, "creating setting %s", row.Key)
		}
		return nil
	}
	err := tx.Model(&models.Setting{}).Where("id = ?", existing.row.ID).Updates(map[string]interface{}{
		"value":     *row.Value,
		"type":      row.Type,
		"group":     row.Group,
		"is_secret": row.IsSecret,
	}).Error
	if err != nil {
		return errors.Annotatef(err, "updating setting %s", row.Key)
	}
	return nil
}

func appendChange(tx *gorm.DB, key string, old, new *string, actorID uint, at time.Time) error {
	change := models.SettingChange{
		SettingKey: key,
		OldValue:   old,
		NewValue:   new,
		CreatedAt:  at,
	}
	if actorID != 0 {
		id := actorID
		change.ChangedBy = &id
	}
	if err := tx.Create(&change).Error; err != nil {
		return errors.Annotatef(err, "recording change of %s", key)
	}
	return nil
}

// representSetting encodes a coerced value: lists as JSON, booleans as
// "1"/"0", everything else as its string form.
func representSetting(value interface{}) (string, models.SettingType, error) {
	switch v := value.(type) {
	case nil:
		return "", models.SettingTypeString, nil
	case []string:
		data, err := json.Marshal(v)
		if err != nil {
			return "", "", err
		}
		return string(data), models.SettingTypeJSON, nil
	case bool:
		if v {
			return "1", models.SettingTypeBoolean, nil
		}
		return "0", models.SettingTypeBoolean, nil
	case int64:
		return strconv.FormatInt(v, 10), models.SettingTypeString, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), models.SettingTypeString, nil
	case string:
		return v, models.SettingTypeString, nil
	default:
		return "", "", fmt.Errorf("unsupported value of type %T", value)
	}
}

// validateSettings checks update against the allow-list and returns the
// scalar values coerced to their declared kinds.
func validateSettings(update SettingsUpdate) (map[string]interface{}, error) {
	v := validation{}
	values := make(map[string]interface{}, len(update.Values))

	for key, raw := range update.Values {
		field, ok := settingFields[key]
		if !ok {
			v.add(key, "unknown setting")
			continue
		}
		if field.isFile {
			v.add(key, "must be a file upload")
			continue
		}
		coerced, err := coerceSetting(field, raw)
		if err != nil {
			v.add(key, err.Error())
			continue
		}
		if err := checkVar(v, key, coerced, field.rule(coerced)); err != nil {
			return nil, err
		}
		if v.has(key) {
			continue
		}
		values[key] = coerced
	}

	for key := range values {
		field := settingFields[key]
		if field.gteField == "" {
			continue
		}
		n, okN := values[key].(int64)
		other, okOther := values[field.gteField].(int64)
		if okN && okOther && n < other {
			v.add(key, fmt.Sprintf("must be greater than or equal to %s", field.gteField))
		}
	}

	for key, file := range update.Files {
		field, ok := settingFields[key]
		if !ok || !field.isFile {
			v.add(key, "unknown file setting")
			continue
		}
		if err := checkVar(v, key, file.Ext(), "oneof="+strings.Join(field.fileTypes, " ")); err != nil {
			return nil, err
		}
		if field.maxKB > 0 {
			if err := checkVar(v, key, (file.Size+1023)/1024, fmt.Sprintf("lte=%d", field.maxKB)); err != nil {
				return nil, err
			}
		}
	}

	if err := v.err(); err != nil {
		return nil, err
	}
	return values, nil
}

func coerceSetting(field settingField, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	switch field.kind {
	case kindBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case float64:
			if v == 0 || v == 1 {
				return v == 1, nil
			}
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "1", "true", "on", "yes":
				return true, nil
			case "0", "false", "off", "no":
				return false, nil
			case "":
				return nil, nil
			}
		}
		return nil, fmt.Errorf("must be true or false")
	case kindInt:
		switch v := raw.(type) {
		case float64:
			if v == math.Trunc(v) {
				return int64(v), nil
			}
		case int:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, nil
			}
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, fmt.Errorf("must be an integer")
	case kindFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case string:
			if strings.TrimSpace(v) == "" {
				return nil, nil
			}
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				return f, nil
			}
		}
		return nil, fmt.Errorf("must be a number")
	case kindStringList:
		switch v := raw.(type) {
		case []string:
			return v, nil
		case []interface{}:
			out := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("must be a list of strings")
				}
				out = append(out, s)
			}
			return out, nil
		}
		return nil, fmt.Errorf("must be a list")
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64), nil
		case bool:
			return strconv.FormatBool(v), nil
		}
		return nil, fmt.Errorf("must be a string")
	}
}

// rule renders the bounds of field that apply to value as a validator tag.
func (f settingField) rule(value interface{}) string {
	var parts []string
	switch value.(type) {
	case string:
		if f.maxLen > 0 {
			parts = append(parts, fmt.Sprintf("max=%d", f.maxLen))
		}
		if len(f.enum) > 0 {
			parts = append(parts, "oneof="+strings.Join(f.enum, " "))
		}
	case int64, float64:
		if f.min != nil {
			parts = append(parts, "gte="+strconv.FormatFloat(*f.min, 'f', -1, 64))
		}
		if f.max != nil {
			parts = append(parts, "lte="+strconv.FormatFloat(*f.max, 'f', -1, 64))
		}
	}
	return strings.Join(parts, ",")
}
