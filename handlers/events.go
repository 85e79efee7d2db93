package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"artcache/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	cmap "github.com/orcaman/concurrent-map/v2"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectedListener is one websocket subscription. Generations resolve
// on independent goroutines, so sends are serialized per connection -
// the websocket allows only one concurrent writer.
type ConnectedListener struct {
	mutex     sync.Mutex
	conn      *websocket.Conn
	connected bool
}

func (l *ConnectedListener) send(data []byte) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if !l.connected {
		return false
	}
	if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Println("write err:", err)
		l.connected = false
		return false
	}
	return true
}

func (l *ConnectedListener) disconnect() {
	l.mutex.Lock()
	l.connected = false
	l.mutex.Unlock()
}

// ConnectedListeners is needed as a client may be connected more than once
type ConnectedListeners []*ConnectedListener

var connectedClients = cmap.New[ConnectedListeners]()

func addListener(id string, l *ConnectedListener) {
	connectedClients.Upsert(id, ConnectedListeners{l}, func(exist bool, valueInMap, newValue ConnectedListeners) ConnectedListeners {
		if exist {
			return append(valueInMap, l)
		}
		return newValue
	})
}

func removeListener(id string, l *ConnectedListener) {
	connectedClients.Upsert(id, ConnectedListeners{}, func(exist bool, valueInMap, newValue ConnectedListeners) ConnectedListeners {
		if !exist {
			return newValue
		}
		for _, ol := range valueInMap {
			if ol == l {
				continue
			}
			newValue = append(newValue, ol)
		}
		return newValue
	})
}

type AssetEvent struct {
	Type  string    `json:"type"`
	Asset AssetInfo `json:"asset"`
}

// NotifyAssetCreated fans a created event out to every connected
// listener. Slow generations otherwise force UIs to poll.
func NotifyAssetCreated(asset *models.Asset) {
	data, err := json.Marshal(AssetEvent{Type: "asset_created", Asset: NewAssetInfo(asset)})
	if err != nil {
		return
	}
	for tuple := range connectedClients.IterBuffered() {
		for _, listener := range tuple.Val {
			listener.send(data)
		}
	}
}

// Events upgrades to a websocket and streams asset events until the
// client goes away
func Events(c *gin.Context, client *models.ApiClient) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Print("upgrade:", err)
		return
	}
	defer conn.Close()

	listener := &ConnectedListener{conn: conn, connected: true}
	addListener(client.Name, listener)
	defer removeListener(client.Name, listener)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			listener.disconnect()
			return
		}
	}
}
