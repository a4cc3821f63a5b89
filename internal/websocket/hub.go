package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Hub 按患者维护实时订阅连接
// 读写都通过 RWMutex 保护；发送是非阻塞的，缓冲满的连接直接跳过
type Hub struct {
	mu       sync.RWMutex
	patients map[string]map[*Client]struct{} // patient_id -> clients
	logger   *zap.Logger
}

// NewHub 创建 Hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		patients: make(map[string]map[*Client]struct{}),
		logger:   logger,
	}
}

// Register 注册连接
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.patients[client.PatientID] == nil {
		h.patients[client.PatientID] = make(map[*Client]struct{})
	}
	h.patients[client.PatientID][client] = struct{}{}

	h.logger.Debug("WebSocket client registered",
		zap.String("client_id", client.ID),
		zap.String("patient_id", client.PatientID),
	)
}

// Unregister 移除连接并关闭其发送通道（可重复调用）
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(client)
}

func (h *Hub) unregisterLocked(client *Client) {
	clients, ok := h.patients[client.PatientID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	if len(clients) == 0 {
		delete(h.patients, client.PatientID)
	}
	close(client.send)

	h.logger.Debug("WebSocket client unregistered",
		zap.String("client_id", client.ID),
		zap.String("patient_id", client.PatientID),
	)
}

// Broadcast 推送消息给订阅该患者的所有连接（exclude 可为 nil）
// 返回成功放入发送缓冲的连接数
func (h *Hub) Broadcast(patientID string, msg interface{}, exclude *Client) (int, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal live message: %w", err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for client := range h.patients[patientID] {
		if client == exclude {
			continue
		}
		select {
		case client.send <- data:
			delivered++
		default:
			h.logger.Warn("WebSocket client buffer full, message dropped",
				zap.String("client_id", client.ID),
				zap.String("patient_id", patientID),
			)
		}
	}
	return delivered, nil
}

// ClientCount 连接总数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.patients {
		n += len(clients)
	}
	return n
}

// PatientCount 有订阅者的患者数
func (h *Hub) PatientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.patients)
}

// Close 关闭所有连接的发送通道（写协程随后发送 close 帧并断开）
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.patients {
		for client := range clients {
			h.unregisterLocked(client)
		}
	}
}
