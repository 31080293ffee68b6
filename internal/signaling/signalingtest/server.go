/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

// Package signalingtest provides an in memory AppRTC compatible room server
// for tests.
package signalingtest

import (
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type room struct {
	clients  []string
	messages map[string][]string
	conns    map[string]*websocket.Conn
}

func (r *room) other(clientID string) string {
	for _, id := range r.clients {
		if id != clientID {
			return id
		}
	}
	return ""
}

// Server is a fake room server. The first client joining a room becomes the
// initiator. Messages posted by a client are forwarded to the other client's
// websocket, or kept and returned with the other client's join response.
type Server struct {
	*httptest.Server

	// JoinResult overrides the result of join requests when set.
	JoinResult string
	// PCConfig is returned as pc_config with join responses when set.
	PCConfig string

	mutex  sync.Mutex
	rooms  map[string]*room
	log    []string
	nextID int
}

// NewServer creates and starts a Server.
func NewServer() *Server {
	s := &Server{
		rooms: make(map[string]*room),
	}

	router := mux.NewRouter()
	router.HandleFunc("/join/{roomID}", s.handleJoin).Methods(http.MethodPost)
	router.HandleFunc("/message/{roomID}/{clientID}", s.handleMessage).Methods(http.MethodPost)
	router.HandleFunc("/leave/{roomID}/{clientID}", s.handleLeave).Methods(http.MethodPost)
	router.HandleFunc("/ws", s.handleWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/ws/{roomID}/{clientID}", s.handleDelete).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(router)
	return s
}

func (s *Server) record(format string, args ...interface{}) {
	s.log = append(s.log, fmt.Sprintf(format, args...))
}

// Log returns a copy of all recorded requests.
func (s *Server) Log() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]string(nil), s.log...)
}

// Has reports whether entry was recorded.
func (s *Server) Has(entry string) bool {
	for _, e := range s.Log() {
		if e == entry {
			return true
		}
	}
	return false
}

// WaitFor waits until entry has been recorded or the timeout expired.
func (s *Server) WaitFor(entry string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.Has(entry) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// AddMessage stores a message as if it was posted by clientID before the
// other client joined. The room is created with clientID as initiator.
func (s *Server) AddMessage(roomID, clientID, message string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r := s.room(roomID)
	if len(r.clients) == 0 {
		r.clients = append(r.clients, clientID)
	}
	r.messages[clientID] = append(r.messages[clientID], message)
}

// SendTo writes a message frame to the websocket of the client.
func (s *Server) SendTo(roomID, clientID, message string) error {
	return s.write(roomID, clientID, map[string]string{"msg": message, "error": ""})
}

// SendErrorTo writes an error frame to the websocket of the client.
func (s *Server) SendErrorTo(roomID, clientID, errorText string) error {
	return s.write(roomID, clientID, map[string]string{"msg": "", "error": errorText})
}

// CloseClient closes the websocket of the client normally.
func (s *Server) CloseClient(roomID, clientID string) error {
	conn := s.conn(roomID, clientID)
	if conn == nil {
		return fmt.Errorf("client %s not registered", clientID)
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) write(roomID, clientID string, v interface{}) error {
	conn := s.conn(roomID, clientID)
	if conn == nil {
		return fmt.Errorf("client %s not registered", clientID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}

func (s *Server) conn(roomID, clientID string) *websocket.Conn {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.room(roomID).conns[clientID]
}

func (s *Server) room(roomID string) *room {
	r, ok := s.rooms[roomID]
	if !ok {
		r = &room{
			messages: make(map[string][]string),
			conns:    make(map[string]*websocket.Conn),
		}
		s.rooms[roomID] = r
	}
	return r
}

func writeJSON(rw http.ResponseWriter, v interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(v)
}

func (s *Server) handleJoin(rw http.ResponseWriter, req *http.Request) {
	roomID := mux.Vars(req)["roomID"]

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.record("join:%s", roomID)

	if s.JoinResult != "" {
		writeJSON(rw, map[string]interface{}{"result": s.JoinResult})
		return
	}

	r := s.room(roomID)
	if len(r.clients) >= 2 {
		writeJSON(rw, map[string]interface{}{"result": "FULL"})
		return
	}

	s.nextID++
	clientID := "client" + strconv.Itoa(s.nextID)
	initiator := len(r.clients) == 0
	r.clients = append(r.clients, clientID)

	params := map[string]interface{}{
		"is_initiator": strconv.FormatBool(initiator),
		"room_id":      roomID,
		"client_id":    clientID,
		"wss_url":      s.URL + "/ws",
		"wss_post_url": s.URL + "/ws",
	}
	if !initiator {
		messages := r.messages[r.other(clientID)]
		if messages == nil {
			messages = []string{}
		}
		params["messages"] = messages
	}
	if s.PCConfig != "" {
		params["pc_config"] = s.PCConfig
	}

	writeJSON(rw, map[string]interface{}{
		"result": "SUCCESS",
		"params": params,
	})
}

func (s *Server) handleMessage(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	roomID, clientID := vars["roomID"], vars["clientID"]

	body, err := ioutil.ReadAll(req.Body)
	if err != nil {
		http.Error(rw, err.Error(), http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	s.record("message:%s:%s", clientID, body)
	r := s.room(roomID)
	conn := r.conns[r.other(clientID)]
	if conn == nil {
		r.messages[clientID] = append(r.messages[clientID], string(body))
	}
	s.mutex.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 5*time.Second)
		defer cancel()
		wsjson.Write(ctx, conn, map[string]string{"msg": string(body), "error": ""})
	}

	writeJSON(rw, map[string]interface{}{"result": "SUCCESS"})
}

func (s *Server) handleLeave(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	roomID, clientID := vars["roomID"], vars["clientID"]

	s.mutex.Lock()
	s.record("leave:%s", clientID)
	r := s.room(roomID)
	clients := r.clients[:0]
	for _, id := range r.clients {
		if id != clientID {
			clients = append(clients, id)
		}
	}
	r.clients = clients
	s.mutex.Unlock()

	writeJSON(rw, map[string]interface{}{"result": "SUCCESS"})
}

func (s *Server) handleDelete(rw http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	s.mutex.Lock()
	s.record("delete:%s", vars["clientID"])
	delete(s.room(vars["roomID"]).conns, vars["clientID"])
	s.mutex.Unlock()

	rw.WriteHeader(http.StatusOK)
}

type command struct {
	Cmd      string `json:"cmd"`
	RoomID   string `json:"roomid"`
	ClientID string `json:"clientid"`
	Msg      string `json:"msg"`
}

func (s *Server) handleWebsocket(rw http.ResponseWriter, req *http.Request) {
	conn, err := websocket.Accept(rw, req, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := req.Context()
	var roomID, clientID string
	for {
		cmd := &command{}
		if err := wsjson.Read(ctx, conn, cmd); err != nil {
			return
		}

		switch cmd.Cmd {
		case "register":
			roomID, clientID = cmd.RoomID, cmd.ClientID
			s.mutex.Lock()
			s.record("register:%s", clientID)
			s.room(roomID).conns[clientID] = conn
			s.mutex.Unlock()

		case "send":
			s.mutex.Lock()
			s.record("send:%s:%s", clientID, cmd.Msg)
			r := s.room(roomID)
			other := r.conns[r.other(clientID)]
			s.mutex.Unlock()
			if other != nil {
				writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				wsjson.Write(writeCtx, other, map[string]string{"msg": cmd.Msg, "error": ""})
				cancel()
			}
		}
	}
}
