package modbus

import (
	"errors"

	"solarcharge/internal/models"
)

// Telemetry register block. All live readings sit inside one input-register
// window, so a poll is a single block read.
const (
	TelemetryBlockStart uint16 = 32069
	TelemetryBlockCount uint16 = 50
)

// Register addresses inside the telemetry block.
const (
	RegVoltageDC   uint16 = 32069 // V, scale 10
	RegCurrentDC   uint16 = 32070 // A, scale 100
	RegVoltageAC   uint16 = 32073 // V, scale 10
	RegCurrentAC   uint16 = 32076 // A, scale 100
	RegActivePower uint16 = 32080 // W, int32 over two registers
	RegFrequency   uint16 = 32085 // Hz, scale 100
	RegEfficiency  uint16 = 32086 // %, scale 100
	RegTemperature uint16 = 32087 // degC, int16, scale 10
	RegTotalEnergy uint16 = 32106 // kWh, uint32 over two registers, scale 100
	RegDailyEnergy uint16 = 32114 // kWh, uint32 over two registers, scale 100
)

// ErrParameterNotSupported reports a write to a parameter the device does
// not expose. Most registers on these inverters are read-only.
var ErrParameterNotSupported = errors.New("inverter parameter not supported")

// WritableParameter describes one holding register open for writes.
type WritableParameter struct {
	Register uint16
	Scale    float64
}

// The few configuration registers writable on this inverter family.
var writableParameters = map[string]WritableParameter{
	"active_power_limit_pct": {Register: 40125, Scale: 10},
	"power_factor":           {Register: 40129, Scale: 1000},
}

// LookupParameter resolves a parameter name to its holding register.
func LookupParameter(name string) (WritableParameter, error) {
	param, ok := writableParameters[name]
	if !ok {
		return WritableParameter{}, ErrParameterNotSupported
	}
	return param, nil
}

// RegisterBlock is one contiguous read starting at Base. Accessors address
// registers absolutely; a register outside the block reports !ok instead of
// a bogus zero reading being mistaken for data.
type RegisterBlock struct {
	Base uint16
	Regs []uint16
}

func (b RegisterBlock) u16(addr uint16) (uint16, bool) {
	if addr < b.Base {
		return 0, false
	}
	offset := int(addr - b.Base)
	if offset >= len(b.Regs) {
		return 0, false
	}
	return b.Regs[offset], true
}

func (b RegisterBlock) i16(addr uint16) (int16, bool) {
	v, ok := b.u16(addr)
	return int16(v), ok
}

func (b RegisterBlock) u32(addr uint16) (uint32, bool) {
	hi, ok := b.u16(addr)
	if !ok {
		return 0, false
	}
	lo, ok := b.u16(addr + 1)
	if !ok {
		return 0, false
	}
	return uint32(hi)<<16 | uint32(lo), true
}

func (b RegisterBlock) i32(addr uint16) (int32, bool) {
	v, ok := b.u32(addr)
	return int32(v), ok
}

// DecodeTelemetry converts a raw register block into engineering units.
// Fields whose registers fall outside the block stay at their zero value.
func DecodeTelemetry(block RegisterBlock) models.TelemetrySnapshot {
	var snap models.TelemetrySnapshot

	if v, ok := block.u16(RegVoltageDC); ok {
		snap.VoltageDC = float64(v) / 10
	}
	if v, ok := block.u16(RegCurrentDC); ok {
		snap.CurrentDC = float64(v) / 100
	}
	if v, ok := block.u16(RegVoltageAC); ok {
		snap.VoltageAC = float64(v) / 10
	}
	if v, ok := block.u16(RegCurrentAC); ok {
		snap.CurrentAC = float64(v) / 100
	}
	if v, ok := block.i32(RegActivePower); ok {
		snap.PowerKW = float64(v) / 1000
	}
	if v, ok := block.u16(RegFrequency); ok {
		snap.FrequencyHz = float64(v) / 100
	}
	if v, ok := block.u16(RegEfficiency); ok {
		snap.EfficiencyPct = float64(v) / 100
	}
	if v, ok := block.i16(RegTemperature); ok {
		snap.TemperatureC = float64(v) / 10
	}
	if v, ok := block.u32(RegTotalEnergy); ok {
		snap.TotalEnergyKWh = float64(v) / 100
	}
	if v, ok := block.u32(RegDailyEnergy); ok {
		snap.DailyEnergyKWh = float64(v) / 100
	}

	return snap
}
