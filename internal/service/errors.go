package service

import "errors"

var (
	// ErrNotFound - запись отсутствует в хранилище
	ErrNotFound = errors.New("not found")
	// ErrInvalidLocation - у инцидента или экипажа нет корректных координат
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInvalidServiceType - категория вне допустимого набора
	ErrInvalidServiceType = errors.New("invalid service type")
	// ErrInvalidStatusTransition - недопустимая смена статуса инцидента
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrIncidentNotDispatchable - инцидент уже обслуживается или закрыт
	ErrIncidentNotDispatchable = errors.New("incident is not awaiting dispatch")
)
