package modbus

import (
	"fmt"
	"time"

	driver "github.com/simonvetter/modbus"
)

// DeviceClient is the narrow slice of a Modbus TCP connection the poller
// needs. Tests substitute a scripted fake.
type DeviceClient interface {
	Open() error
	Close() error
	ReadTelemetryBlock() (RegisterBlock, error)
	WriteParameter(register uint16, value uint16) error
}

type tcpClient struct {
	client *driver.ModbusClient
}

// NewDeviceClient dials nothing yet; the transport connects on Open.
func NewDeviceClient(host string, port int, unitID uint8, timeout time.Duration) (DeviceClient, error) {
	client, err := driver.NewClient(&driver.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s:%d", host, port),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	if err := client.SetUnitId(unitID); err != nil {
		return nil, err
	}
	return &tcpClient{client: client}, nil
}

func (c *tcpClient) Open() error {
	return c.client.Open()
}

func (c *tcpClient) Close() error {
	return c.client.Close()
}

func (c *tcpClient) ReadTelemetryBlock() (RegisterBlock, error) {
	regs, err := c.client.ReadRegisters(TelemetryBlockStart, TelemetryBlockCount, driver.INPUT_REGISTER)
	if err != nil {
		return RegisterBlock{}, err
	}
	return RegisterBlock{Base: TelemetryBlockStart, Regs: regs}, nil
}

func (c *tcpClient) WriteParameter(register uint16, value uint16) error {
	return c.client.WriteRegister(register, value)
}
