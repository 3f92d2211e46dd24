package reader

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"tagkeep/uid"
)

// MFRC522 registers.
const (
	regCommand     = 0x01
	regComIrq      = 0x04
	regDivIrq      = 0x05
	regError       = 0x06
	regStatus2     = 0x08
	regFIFOData    = 0x09
	regFIFOLevel   = 0x0A
	regControl     = 0x0C
	regBitFraming  = 0x0D
	regColl        = 0x0E
	regMode        = 0x11
	regTxMode      = 0x12
	regRxMode      = 0x13
	regTxControl   = 0x14
	regTxASK       = 0x15
	regCRCResultH  = 0x21
	regCRCResultL  = 0x22
	regModWidth    = 0x24
	regTMode       = 0x2A
	regTPrescaler  = 0x2B
	regTReloadH    = 0x2C
	regTReloadL    = 0x2D
	regVersion     = 0x37
	cmdIdle        = 0x00
	cmdCalcCRC     = 0x03
	cmdTransceive  = 0x0C
	cmdSoftReset   = 0x0F
	piccREQA       = 0x26
	piccHLTA       = 0x50
	piccCascadeTag = 0x88
)

var cascadeLevels = [...]byte{0x93, 0x95, 0x97}

var (
	errNoCard    = errors.New("no card response")
	errCollision = errors.New("collision")
)

// MFRC522 implements Reader for an NXP MFRC522 on SPI.
type MFRC522 struct {
	port  spi.PortCloser
	conn  conn.Conn
	reset *gpiocdev.Line
}

// NewMFRC522 opens the SPI port named by cfg.Device and initializes the chip.
func NewMFRC522(cfg Config) (*MFRC522, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	m := &MFRC522{}

	if cfg.ResetPin != nil {
		chip := cfg.ResetChip
		if chip == "" {
			chip = "gpiochip0"
		}
		// reset is active low; hold it released
		l, err := gpiocdev.RequestLine(chip, *cfg.ResetPin, gpiocdev.AsOutput(1))
		if err != nil {
			return nil, fmt.Errorf("request reset line %s:%d: %w", chip, *cfg.ResetPin, err)
		}
		m.reset = l
	}

	port, err := spireg.Open(cfg.Device)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("open spi %q: %w", cfg.Device, err)
	}
	m.port = port

	speed := physic.Frequency(cfg.SPISpeedHz) * physic.Hertz
	if speed == 0 {
		speed = physic.MegaHertz
	}
	c, err := port.Connect(speed, spi.Mode0, 8)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("connect spi: %w", err)
	}
	m.conn = c

	if err := m.init(); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *MFRC522) init() error {
	if m.reset != nil {
		_ = m.reset.SetValue(0)
		time.Sleep(time.Millisecond)
		_ = m.reset.SetValue(1)
		time.Sleep(50 * time.Millisecond)
	}

	if err := m.write(regCommand, cmdSoftReset); err != nil {
		return fmt.Errorf("soft reset: %w", err)
	}
	time.Sleep(50 * time.Millisecond)

	// 25 ms receive timeout: f_timer = 13.56 MHz / (2*0xA9+1) ≈ 40 kHz, reload 1000
	steps := []struct{ reg, val byte }{
		{regTxMode, 0x00},
		{regRxMode, 0x00},
		{regModWidth, 0x26},
		{regTMode, 0x80},
		{regTPrescaler, 0xA9},
		{regTReloadH, 0x03},
		{regTReloadL, 0xE8},
		{regTxASK, 0x40},
		{regMode, 0x3D},
	}
	for _, s := range steps {
		if err := m.write(s.reg, s.val); err != nil {
			return fmt.Errorf("init register %#02x: %w", s.reg, err)
		}
	}
	if err := m.setBits(regTxControl, 0x03); err != nil {
		return fmt.Errorf("antenna on: %w", err)
	}

	v, err := m.read(regVersion)
	if err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if v == 0x00 || v == 0xFF {
		return fmt.Errorf("no MFRC522 on bus (version %#02x)", v)
	}
	log.Printf("MFRC522 version %#02x", v)
	return nil
}

// CardPresent implements Reader.CardPresent by sending REQA. Halted cards
// do not answer, so a card left in the field is reported once.
func (m *MFRC522) CardPresent() bool {
	if err := m.clearBits(regColl, 0x80); err != nil {
		return false
	}
	atqa, bits, err := m.transceive([]byte{piccREQA}, 7)
	return err == nil && len(atqa) == 2 && bits == 0
}

// ReadSerial implements Reader.ReadSerial. It runs anticollision and
// select through up to three cascade levels.
func (m *MFRC522) ReadSerial() (uid.ID, error) {
	var levels [][4]byte
	for _, sel := range cascadeLevels {
		part, err := m.anticollision(sel)
		if err != nil {
			return uid.ID{}, fmt.Errorf("%w: cascade %#02x: %v", ErrRead, sel, err)
		}
		sak, err := m.selectLevel(sel, part)
		if err != nil {
			return uid.ID{}, fmt.Errorf("%w: select %#02x: %v", ErrRead, sel, err)
		}
		levels = append(levels, part)
		if sak&0x04 == 0 {
			break
		}
	}

	raw, err := assembleUID(levels)
	if err != nil {
		return uid.ID{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	id, err := uid.New(raw)
	if err != nil {
		return uid.ID{}, fmt.Errorf("%w: %v", ErrRead, err)
	}
	return id, nil
}

// EndSession implements Reader.EndSession: HLTA, then stop crypto.
func (m *MFRC522) EndSession() {
	frame := []byte{piccHLTA, 0x00, 0, 0}
	if crc, err := m.calcCRC(frame[:2]); err == nil {
		copy(frame[2:], crc[:])
		// a halted card does not answer; timeout is success
		if _, _, err := m.transceive(frame, 0); err != nil && !errors.Is(err, errNoCard) {
			log.Printf("MFRC522 halt: %v", err)
		}
	}
	if err := m.clearBits(regStatus2, 0x08); err != nil {
		log.Printf("MFRC522 stop crypto: %v", err)
	}
}

// Close implements Reader.Close.
func (m *MFRC522) Close() error {
	var lastErr error
	if m.port != nil {
		if err := m.port.Close(); err != nil {
			lastErr = err
		}
	}
	if m.reset != nil {
		if err := m.reset.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (m *MFRC522) anticollision(sel byte) ([4]byte, error) {
	var part [4]byte
	if err := m.write(regBitFraming, 0x00); err != nil {
		return part, err
	}
	resp, _, err := m.transceive([]byte{sel, 0x20}, 0)
	if err != nil {
		return part, err
	}
	if len(resp) != 5 {
		return part, fmt.Errorf("anticollision answer %d bytes", len(resp))
	}
	if bcc(resp[:4]) != resp[4] {
		return part, fmt.Errorf("bcc mismatch")
	}
	copy(part[:], resp[:4])
	return part, nil
}

func (m *MFRC522) selectLevel(sel byte, part [4]byte) (byte, error) {
	frame := []byte{sel, 0x70, part[0], part[1], part[2], part[3], bcc(part[:]), 0, 0}
	crc, err := m.calcCRC(frame[:7])
	if err != nil {
		return 0, err
	}
	copy(frame[7:], crc[:])

	resp, _, err := m.transceive(frame, 0)
	if err != nil {
		return 0, err
	}
	if len(resp) != 3 {
		return 0, fmt.Errorf("select answer %d bytes", len(resp))
	}
	return resp[0], nil
}

// bcc is the block check character: XOR of the four uid bytes.
func bcc(b []byte) byte {
	var x byte
	for _, v := range b {
		x ^= v
	}
	return x
}

// assembleUID joins the cascade level answers. Every level but the last
// starts with the cascade tag, which is not part of the uid.
func assembleUID(levels [][4]byte) ([]byte, error) {
	if len(levels) == 0 {
		return nil, errors.New("no cascade levels")
	}
	var out []byte
	for i, part := range levels {
		last := i == len(levels)-1
		if !last {
			if part[0] != piccCascadeTag {
				return nil, fmt.Errorf("level %d missing cascade tag", i+1)
			}
			out = append(out, part[1:]...)
			continue
		}
		out = append(out, part[:]...)
	}
	return out, nil
}

func (m *MFRC522) transceive(send []byte, validBits byte) ([]byte, byte, error) {
	steps := []struct{ reg, val byte }{
		{regCommand, cmdIdle},
		{regComIrq, 0x7F},
		{regFIFOLevel, 0x80},
	}
	for _, s := range steps {
		if err := m.write(s.reg, s.val); err != nil {
			return nil, 0, err
		}
	}
	for _, b := range send {
		if err := m.write(regFIFOData, b); err != nil {
			return nil, 0, err
		}
	}
	if err := m.write(regBitFraming, validBits); err != nil {
		return nil, 0, err
	}
	if err := m.write(regCommand, cmdTransceive); err != nil {
		return nil, 0, err
	}
	if err := m.setBits(regBitFraming, 0x80); err != nil {
		return nil, 0, err
	}

	deadline := time.Now().Add(40 * time.Millisecond)
	for {
		irq, err := m.read(regComIrq)
		if err != nil {
			return nil, 0, err
		}
		if irq&0x30 != 0 {
			break
		}
		if irq&0x01 != 0 || time.Now().After(deadline) {
			return nil, 0, errNoCard
		}
	}

	errReg, err := m.read(regError)
	if err != nil {
		return nil, 0, err
	}
	if errReg&0x13 != 0 {
		return nil, 0, fmt.Errorf("error register %#02x", errReg)
	}
	if errReg&0x08 != 0 {
		return nil, 0, errCollision
	}

	n, err := m.read(regFIFOLevel)
	if err != nil {
		return nil, 0, err
	}
	resp := make([]byte, n)
	for i := range resp {
		if resp[i], err = m.read(regFIFOData); err != nil {
			return nil, 0, err
		}
	}
	ctl, err := m.read(regControl)
	if err != nil {
		return nil, 0, err
	}
	return resp, ctl & 0x07, nil
}

func (m *MFRC522) calcCRC(data []byte) ([2]byte, error) {
	var crc [2]byte
	for _, s := range []struct{ reg, val byte }{
		{regCommand, cmdIdle},
		{regDivIrq, 0x04},
		{regFIFOLevel, 0x80},
	} {
		if err := m.write(s.reg, s.val); err != nil {
			return crc, err
		}
	}
	for _, b := range data {
		if err := m.write(regFIFOData, b); err != nil {
			return crc, err
		}
	}
	if err := m.write(regCommand, cmdCalcCRC); err != nil {
		return crc, err
	}

	deadline := time.Now().Add(90 * time.Millisecond)
	for {
		irq, err := m.read(regDivIrq)
		if err != nil {
			return crc, err
		}
		if irq&0x04 != 0 {
			break
		}
		if time.Now().After(deadline) {
			return crc, errors.New("crc timeout")
		}
	}
	if err := m.write(regCommand, cmdIdle); err != nil {
		return crc, err
	}

	lo, err := m.read(regCRCResultL)
	if err != nil {
		return crc, err
	}
	hi, err := m.read(regCRCResultH)
	if err != nil {
		return crc, err
	}
	crc[0], crc[1] = lo, hi
	return crc, nil
}

func (m *MFRC522) read(reg byte) (byte, error) {
	w := []byte{((reg << 1) & 0x7E) | 0x80, 0}
	r := make([]byte, 2)
	if err := m.conn.Tx(w, r); err != nil {
		return 0, err
	}
	return r[1], nil
}

func (m *MFRC522) write(reg, val byte) error {
	return m.conn.Tx([]byte{(reg << 1) & 0x7E, val}, make([]byte, 2))
}

func (m *MFRC522) setBits(reg, mask byte) error {
	v, err := m.read(reg)
	if err != nil {
		return err
	}
	return m.write(reg, v|mask)
}

func (m *MFRC522) clearBits(reg, mask byte) error {
	v, err := m.read(reg)
	if err != nil {
		return err
	}
	return m.write(reg, v&^mask)
}
