package opcuaserver

import (
	"context"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
)

// tagNodeID mirrors the original C++ server's node identifier scheme:
// a namespace-1 string node id equal to the tag name.
func tagNodeID(tag plctypes.Tag) ua.NodeID {
	return ua.NewNodeIDString(1, tag.Name)
}

// buildNamespace creates the "<ServerName> Tags" folder under the root
// Objects folder and one variable node per tag beneath it, matching
// the layout of opcua_server.cpp's addVariable. The folder name comes
// from Config.ServerName; the device slave name is not used.
func (s *Server) buildNamespace() error {
	nm := s.srv.NamespaceManager()

	folderID := ua.NewNodeIDString(1, s.cfg.ServerName+" Tags")
	folder := server.NewFolderNode(
		folderID,
		ua.NewQualifiedName(1, s.cfg.ServerName+" Tags"),
		ua.NewLocalizedText(s.cfg.ServerName+" Tags", ""),
		ua.NewLocalizedText("", ""),
		nil,
		[]ua.Reference{
			{ReferenceTypeID: ua.ReferenceTypeIDOrganizes, IsInverse: true, TargetID: ua.ObjectIDObjectsFolder.NodeID()},
		},
	)
	nm.AddNode(folder)

	for _, tag := range s.tags {
		if err := s.addVariableNode(nm, folderID, tag); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) addVariableNode(nm *server.NodeManager, folderID ua.NodeID, tag plctypes.Tag) error {
	dataType := ua.DataTypeIDUInt16
	initial := ua.NewVariant(uint16(0))
	if tag.Kind.Bit() {
		dataType = ua.DataTypeIDBoolean
		initial = ua.NewVariant(false)
	}

	accessLevel := byte(ua.AccessLevelsCurrentRead)
	if tag.Writable() {
		accessLevel |= byte(ua.AccessLevelsCurrentWrite)
	}

	node := server.NewVariableNode(
		tagNodeID(tag),
		ua.NewQualifiedName(1, tag.Name),
		ua.NewLocalizedText(tag.Name, ""),
		ua.NewLocalizedText("", ""),
		nil,
		[]ua.Reference{
			{ReferenceTypeID: ua.ReferenceTypeIDOrganizes, IsInverse: true, TargetID: folderID},
			{ReferenceTypeID: ua.ReferenceTypeIDHasTypeDefinition, IsInverse: false, TargetID: ua.VariableTypeIDBaseDataVariableType.NodeID()},
		},
		ua.NewDataValue(initial, ua.Good, time.Now(), 0, time.Now(), 0),
		dataType,
		ua.ValueRankScalar,
		nil,
		accessLevel,
		100.0,
		false,
	)

	if tag.Writable() {
		copyTag := tag
		node.SetWriteValueHandler(func(ctx context.Context, req server.WriteValueRequest) (ua.StatusCode, error) {
			if err := s.writeTagFromClient(ctx, copyTag, req.Value.Value); err != nil {
				s.logger.Warn("opc ua write rejected", zap.String("tag", copyTag.Name), zap.Error(err))
				return ua.BadOutOfRange, nil
			}
			return ua.Good, nil
		})
	}

	nm.AddNode(node)
	return nil
}

func (s *Server) writeTagFromClient(ctx context.Context, tag plctypes.Tag, value interface{}) error {
	switch tag.Kind {
	case plctypes.Coil:
		v, ok := value.(bool)
		if !ok {
			return errBadValue
		}
		return s.bank.WriteBit(ctx, plctypes.Coil, int(tag.Address), v)
	case plctypes.HoldingRegister:
		v, ok := toUint16(value)
		if !ok {
			return errBadValue
		}
		return s.bank.WriteWord(ctx, plctypes.HoldingRegister, int(tag.Address), v)
	default:
		return errNotWritable
	}
}

func toUint16(value interface{}) (uint16, bool) {
	switch v := value.(type) {
	case uint16:
		return v, true
	case int:
		return uint16(v), true
	case int32:
		return uint16(v), true
	case float64:
		return uint16(v), true
	default:
		return 0, false
	}
}
