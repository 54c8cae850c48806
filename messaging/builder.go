package messaging

import "time"

type MessageBuilder struct {
	message *Message
}

func NewMessage(from, to string, messageType MessageType, data any) *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			ID:        generateID(),
			From:      from,
			To:        to,
			Type:      messageType,
			Data:      data,
			Timestamp: time.Now(),
		},
	}
}

func NewRequest(from, to string, data any) *MessageBuilder {
	return NewMessage(from, to, MessageTypeRequest, data)
}

func NewResponse(from, to, replyTo string, data any) *MessageBuilder {
	return NewMessage(from, to, MessageTypeResponse, data).ReplyTo(replyTo)
}

func NewNotification(from, to string, data any) *MessageBuilder {
	return NewMessage(from, to, MessageTypeNotification, data)
}

func (mb *MessageBuilder) ReplyTo(replyTo string) *MessageBuilder {
	mb.message.ReplyTo = replyTo
	return mb
}

func (mb *MessageBuilder) Topic(topic string) *MessageBuilder {
	mb.message.Topic = topic
	return mb
}

// Header sets a single header, allocating the map on first use.
func (mb *MessageBuilder) Header(key, value string) *MessageBuilder {
	if mb.message.Headers == nil {
		mb.message.Headers = make(map[string]string)
	}
	mb.message.Headers[key] = value
	return mb
}

func (mb *MessageBuilder) Build() *Message {
	return mb.message
}
