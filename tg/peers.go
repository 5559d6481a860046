package tg

// PeersIndex - users and chats which came together with updates or result,
// keyed by marked peer id
type PeersIndex struct {
	Users map[int64]UserClass
	Chats map[int64]ChatClass
}

func NewPeersIndex(users []UserClass, chats []ChatClass) *PeersIndex {
	p := &PeersIndex{
		Users: make(map[int64]UserClass, len(users)),
		Chats: make(map[int64]ChatClass, len(chats)),
	}
	p.Add(users, chats)
	return p
}

// PeersOf - builds index from object which carries users and chats
func PeersOf(v any) *PeersIndex {
	switch x := v.(type) {
	case Updates:
		return NewPeersIndex(x.Users, x.Chats)
	case UpdatesCombined:
		return NewPeersIndex(x.Users, x.Chats)
	case Difference:
		return NewPeersIndex(x.Users, x.Chats)
	case DifferenceSlice:
		return NewPeersIndex(x.Users, x.Chats)
	case ChannelDifference:
		return NewPeersIndex(x.Users, x.Chats)
	case ChannelDifferenceTooLong:
		return NewPeersIndex(x.Users, x.Chats)
	}
	return NewPeersIndex(nil, nil)
}

// Add - merges peers, newer object replaces existing one, except empty placeholders
func (p *PeersIndex) Add(users []UserClass, chats []ChatClass) {
	for _, u := range users {
		if _, empty := u.(UserEmpty); empty {
			if _, ok := p.Users[u.GetID()]; ok {
				continue
			}
		}
		p.Users[u.GetID()] = u
	}
	for _, c := range chats {
		if _, empty := c.(ChatEmpty); empty {
			if _, ok := p.Chats[c.MarkedID()]; ok {
				continue
			}
		}
		p.Chats[c.MarkedID()] = c
	}
}

func (p *PeersIndex) Merge(o *PeersIndex) {
	if o == nil {
		return
	}
	for _, u := range o.Users {
		p.Add([]UserClass{u}, nil)
	}
	for _, c := range o.Chats {
		p.Add(nil, []ChatClass{c})
	}
}

func (p *PeersIndex) User(id int64) (User, bool) {
	u, ok := p.Users[id].(User)
	return u, ok
}

// Chat - basic group or channel by marked id
func (p *PeersIndex) Chat(markedID int64) (ChatClass, bool) {
	c, ok := p.Chats[markedID]
	return c, ok
}

func (p *PeersIndex) Channel(channelID int64) (Channel, bool) {
	c, ok := p.Chats[zeroChannelID-channelID].(Channel)
	return c, ok
}

// Get - user or chat for peer
func (p *PeersIndex) Get(peer Peer) (any, bool) {
	if u, ok := peer.(PeerUser); ok {
		v, ok := p.Users[u.UserID]
		return v, ok
	}
	v, ok := p.Chats[MarkedID(peer)]
	return v, ok
}

func (p *PeersIndex) Len() int {
	return len(p.Users) + len(p.Chats)
}
