package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrDoctorNotFound  = errors.New("doctor not found")
	ErrProfileNotFound = errors.New("profile not found")
	ErrScoreNotFound   = errors.New("score not found")
	ErrNoDefault       = errors.New("no default profile")
	ErrProfileExists   = errors.New("profile already exists")
	ErrInvalidLimit    = errors.New("invalid limit")
)
