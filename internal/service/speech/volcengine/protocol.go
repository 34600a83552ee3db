package volcengine

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// 二进制帧协议版本，头部固定为4字节
const (
	protocolVersion = 0b0001
	headerWords     = 0b0001
)

// messageType 帧类型
type messageType uint8

const (
	fullClientRequest  messageType = 0b0001
	fullServerResponse messageType = 0b1001
	audioOnlyResponse  messageType = 0b1011
	errorResponse      messageType = 0b1111
)

// messageFlags 帧标志，低两位描述序号，第三位表示携带事件
type messageFlags uint8

const (
	flagNoSequence       messageFlags = 0b0000
	flagPositiveSequence messageFlags = 0b0001
	flagLastNoSequence   messageFlags = 0b0010
	flagNegativeSequence messageFlags = 0b0011
	flagWithEvent        messageFlags = 0b0100

	sequenceMask messageFlags = 0b0011
)

// eventType 服务端事件
type eventType int32

const (
	eventStartConnection    eventType = 1
	eventFinishConnection   eventType = 2
	eventConnectionStarted  eventType = 50
	eventConnectionFailed   eventType = 51
	eventConnectionFinished eventType = 52
	eventSessionStarted     eventType = 150
	eventSessionFinished    eventType = 152
	eventSessionFailed      eventType = 153
)

const (
	serializationNone uint8 = 0b0000
	serializationJSON uint8 = 0b0001
)

const (
	compressionNone uint8 = 0b0000
	compressionGzip uint8 = 0b0001
)

// frame 一条完整的二进制消息
type frame struct {
	kind          messageType
	flags         messageFlags
	serialization uint8
	compression   uint8
	sequence      int32
	event         eventType
	sessionID     string
	connectID     string
	errorCode     uint32
	payload       []byte
}

// newRequestFrame 构造携带JSON参数的合成请求
func newRequestFrame(payload []byte) *frame {
	return &frame{
		kind:          fullClientRequest,
		flags:         flagNoSequence,
		serialization: serializationJSON,
		compression:   compressionNone,
		payload:       payload,
	}
}

func (f *frame) hasSequence() bool {
	s := f.flags & sequenceMask
	return s == flagPositiveSequence || s == flagNegativeSequence
}

func (f *frame) hasEvent() bool {
	return f.flags&flagWithEvent == flagWithEvent
}

// last 判断是否为最后一包
func (f *frame) last() bool {
	s := f.flags & sequenceMask
	return s == flagLastNoSequence || s == flagNegativeSequence
}

// body 返回解压后的payload
func (f *frame) body() ([]byte, error) {
	return decompress(f.payload, f.compression)
}

func (f *frame) marshal() []byte {
	var buf bytes.Buffer
	buf.Write([]byte{
		protocolVersion<<4 | headerWords,
		uint8(f.kind)<<4 | uint8(f.flags),
		f.serialization<<4 | f.compression,
		0,
	})

	put := func(v uint32) {
		_ = binary.Write(&buf, binary.BigEndian, v)
	}
	putString := func(s string) {
		put(uint32(len(s)))
		buf.WriteString(s)
	}

	if f.hasSequence() {
		put(uint32(f.sequence))
	}
	if f.hasEvent() {
		put(uint32(f.event))
		if !f.event.connectionScoped() {
			putString(f.sessionID)
		}
		if f.event.carriesConnectID() {
			putString(f.connectID)
		}
	}
	if f.kind == errorResponse {
		put(f.errorCode)
	}
	put(uint32(len(f.payload)))
	buf.Write(f.payload)
	return buf.Bytes()
}

func unmarshalFrame(data []byte) (*frame, error) {
	r := bytes.NewReader(data)

	head := make([]byte, 4)
	if _, err := io.ReadFull(r, head); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if version := head[0] >> 4; version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", version)
	}

	f := &frame{
		kind:          messageType(head[1] >> 4),
		flags:         messageFlags(head[1] & 0x0F),
		serialization: head[2] >> 4,
		compression:   head[2] & 0x0F,
	}

	// 跳过扩展头部
	if extra := int(head[0]&0x0F)*4 - 4; extra > 0 {
		if _, err := io.CopyN(io.Discard, r, int64(extra)); err != nil {
			return nil, fmt.Errorf("read extended header: %w", err)
		}
	}

	readU32 := func(what string) (uint32, error) {
		var v uint32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return 0, fmt.Errorf("read %s: %w", what, err)
		}
		return v, nil
	}
	readString := func(what string) (string, error) {
		size, err := readU32(what + " size")
		if err != nil {
			return "", err
		}
		b := make([]byte, size)
		if _, err := io.ReadFull(r, b); err != nil {
			return "", fmt.Errorf("read %s: %w", what, err)
		}
		return string(b), nil
	}

	if f.hasSequence() {
		v, err := readU32("sequence")
		if err != nil {
			return nil, err
		}
		f.sequence = int32(v)
	}

	if f.hasEvent() {
		v, err := readU32("event")
		if err != nil {
			return nil, err
		}
		f.event = eventType(int32(v))
		if !f.event.connectionScoped() {
			if f.sessionID, err = readString("session id"); err != nil {
				return nil, err
			}
		}
		if f.event.carriesConnectID() {
			if f.connectID, err = readString("connect id"); err != nil {
				return nil, err
			}
		}
	}

	if f.kind == errorResponse {
		code, err := readU32("error code")
		if err != nil {
			return nil, err
		}
		f.errorCode = code
	}

	size, err := readU32("payload size")
	if err != nil {
		return nil, err
	}
	if size > 0 {
		f.payload = make([]byte, size)
		if _, err := io.ReadFull(r, f.payload); err != nil {
			return nil, fmt.Errorf("read payload (expected %d bytes): %w", size, err)
		}
	}
	return f, nil
}

// connectionScoped 连接级事件不携带 session id
func (e eventType) connectionScoped() bool {
	switch e {
	case eventStartConnection, eventFinishConnection,
		eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}

func (e eventType) carriesConnectID() bool {
	switch e {
	case eventConnectionStarted, eventConnectionFailed, eventConnectionFinished:
		return true
	default:
		return false
	}
}
