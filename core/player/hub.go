package player

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"Tunevault/logger"

	"github.com/gorilla/websocket"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	MsgTypeSync   MessageType = "sync"   // 状态同步（服务端 -> 客户端）
	MsgTypeAction MessageType = "action" // 播放控制（客户端 -> 服务端）
	MsgTypePing   MessageType = "ping"   // 心跳
	MsgTypePong   MessageType = "pong"   // 心跳响应
	MsgTypeError  MessageType = "error"  // 错误消息
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Action    string          `json:"action,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client 一个播放器 WebSocket 连接
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID string

	mu     sync.Mutex
	closed bool
}

// NewClient 创建客户端
func NewClient(hub *Hub, conn *websocket.Conn, userID string) *Client {
	return &Client{Hub: hub, Conn: conn, Send: make(chan []byte, sendBuffer), UserID: userID}
}

// trySend 非阻塞发送，缓冲区满时返回 false
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

type broadcastMessage struct {
	userID  string
	message []byte
}

// Hub 按用户分组管理播放器连接，同一用户可以有多个连接（多个标签页/设备）
type Hub struct {
	users map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		users:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.users[client.UserID] == nil {
				h.users[client.UserID] = make(map[*Client]bool)
			}
			h.users[client.UserID][client] = true
			h.mu.Unlock()
			logger.Info("[PlayerHub] client registered", logger.String("user", client.UserID))

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// removeClient 移除客户端（需要持有锁）
func (h *Hub) removeClient(client *Client) {
	clients, ok := h.users[client.UserID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.closeSend()
	if len(clients) == 0 {
		delete(h.users, client.UserID)
	}
	logger.Info("[PlayerHub] client unregistered", logger.String("user", client.UserID))
}

func (h *Hub) deliver(msg broadcastMessage) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.users[msg.userID]))
	for c := range h.users[msg.userID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, c := range clients {
		if !c.trySend(msg.message) {
			// 发送缓冲区满，断开客户端
			slow = append(slow, c)
		}
	}
	if len(slow) > 0 {
		h.mu.Lock()
		for _, c := range slow {
			h.removeClient(c)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, clients := range h.users {
		for c := range clients {
			c.closeSend()
		}
	}
	h.users = make(map[string]map[*Client]bool)
}

// Register 注册客户端
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.closeSend()
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount 用户当前的连接数
func (h *Hub) ClientCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// PublishState 把状态快照推送给用户的所有连接，可作为 Manager 的 ChangeFunc
func (h *Hub) PublishState(userID string, st State) {
	data, err := EncodeSync(st)
	if err != nil {
		logger.Error("[PlayerHub] 序列化播放器状态失败", logger.ErrorField(err))
		return
	}
	select {
	case h.broadcast <- broadcastMessage{userID: userID, message: data}:
	default:
		logger.Warn("[PlayerHub] 广播队列已满，丢弃状态同步", logger.String("user", userID))
	}
}

// EncodeSync 编码一条 sync 消息
func EncodeSync(st State) ([]byte, error) {
	payload, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&WSMessage{Type: MsgTypeSync, Data: payload, Timestamp: time.Now().UnixMilli()})
}

// ReadPump 读取消息循环
func (c *Client) ReadPump(ctx context.Context, handler func(ctx context.Context, c *Client, msg *WSMessage)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("[PlayerHub] websocket read error",
					logger.ErrorField(err),
					logger.String("user", c.UserID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.SendMessage(&WSMessage{Type: MsgTypeError, Error: "invalid message format"})
			continue
		}

		if msg.Type == MsgTypePing {
			c.SendMessage(&WSMessage{Type: MsgTypePong})
			continue
		}
		handler(ctx, c, &msg)
	}
}

// WritePump 写入消息循环
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage 发送消息给客户端，缓冲区满时丢弃
func (c *Client) SendMessage(msg *WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}
