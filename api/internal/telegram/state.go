package telegram

import "sync"

type chatState struct {
	Location string
	RadiusM  int
}

var chats sync.Map // chatID -> chatState

func getState(chatID int64) chatState {
	if v, ok := chats.Load(chatID); ok {
		return v.(chatState)
	}
	return chatState{}
}

var stateMu sync.Mutex

func update(chatID int64, fn func(*chatState)) {
	stateMu.Lock()
	defer stateMu.Unlock()
	st := getState(chatID)
	fn(&st)
	chats.Store(chatID, st)
}

func setLocation(chatID int64, loc string) { update(chatID, func(s *chatState) { s.Location = loc }) }
func setRadius(chatID int64, m int)        { update(chatID, func(s *chatState) { s.RadiusM = m }) }
