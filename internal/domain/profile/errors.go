package profile

import "errors"

var (
	// ErrNoPresets is returned when a preset file declares nothing.
	ErrNoPresets = errors.New("no presets defined")
	// ErrPresetKey is returned for a preset without an id.
	ErrPresetKey = errors.New("preset id must not be empty")
	// ErrDuplicatePreset is returned when two presets share an id.
	ErrDuplicatePreset = errors.New("duplicate preset id")
	// ErrInvalidPreset is returned when preset weights fail validation.
	ErrInvalidPreset = errors.New("invalid preset weights")
	// ErrDeleteDefault is the message shown when deleting the default profile.
	ErrDeleteDefault = errors.New("不能删除默认权重配置")
	// ErrIllegalTransition is returned for a transition the lifecycle forbids.
	ErrIllegalTransition = errors.New("illegal profile transition")
)
