package store_test

import "github.com/zhouzirui/z-arena/backend/internal/model/chat"

func chatMessage(conversationID, content string) chat.Message {
	return chat.Message{ConversationID: conversationID, Sender: chat.SenderUser, Content: content}
}
