package session

import (
	"errors"
	"time"

	"github.com/badgelink/badgelink/internal/transfer"
	"github.com/badgelink/badgelink/internal/wire"
	"github.com/badgelink/badgelink/pkg/appstore"
	"github.com/badgelink/badgelink/pkg/fsstore"
	"github.com/badgelink/badgelink/pkg/settings"
)

// listPageCapacity bounds every List response's returned page (List
// requests carry only an offset, no limit), so it bounds how many
// entries any single List response can carry on the wire.
const listPageCapacity = 32

// --- start application ---

func (s *Session) handleStartApp(req wire.StartAppRequest) {
	if req.Slug == "" {
		s.sendStatus(wire.StatusMalformed)
		return
	}
	h, err := s.appstore.Open(req.Slug)
	if errors.Is(err, appstore.ErrNotFound) {
		s.sendStatus(wire.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("start-app open failed", "slug", req.Slug, "error", err)
		s.sendStatus(wire.StatusInternalError)
		return
	}
	ok, err := s.appstore.BootSelect(h, req.Arg)
	if err != nil {
		s.logger.Error("start-app boot-select failed", "slug", req.Slug, "error", err)
		s.sendStatus(wire.StatusInternalError)
		return
	}
	if !ok {
		s.sendStatus(wire.StatusNotFound)
		return
	}
	s.sendStatus(wire.StatusOk)

	// The ~200ms delay and the reboot request are themselves suspension
	// points of the single-threaded session task, and there is no other
	// work to cooperatively yield to, so a blocking sleep here is
	// correct rather than a spawned goroutine.
	time.Sleep(s.cfg.RebootDelay)
	if s.reboot != nil {
		s.reboot.Reboot()
	}
}

// --- settings store ---

func (s *Session) handleNvsAction(req wire.NvsRequest) {
	switch req.Action {
	case wire.NvsList:
		entries, total, err := s.listSettings(req.Namespace, req.Offset, listPageCapacity)
		if err != nil {
			s.logger.Error("settings list failed", "error", err)
			s.sendStatus(wire.StatusInternalError)
			return
		}
		s.sendResponse(wire.StatusOk, &wire.SettingsListPayload{Entries: entries, Total: total})
	case wire.NvsRead:
		if req.Namespace == "" || req.Key == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		val, err := s.settings.Read(req.Namespace, req.Key)
		switch {
		case errors.Is(err, settings.ErrNotFound):
			s.sendStatus(wire.StatusNotFound)
		case err != nil:
			s.logger.Error("settings read failed", "namespace", req.Namespace, "key", req.Key, "error", err)
			s.sendStatus(wire.StatusInternalError)
		default:
			s.sendResponse(wire.StatusOk, &wire.SettingsValuePayload{Value: val})
		}
	case wire.NvsWrite:
		if req.Namespace == "" || req.Key == "" || req.Value.Type != req.ValueType {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		if err := s.settings.Write(req.Namespace, req.Key, req.Value); err != nil {
			s.logger.Error("settings write failed", "namespace", req.Namespace, "key", req.Key, "error", err)
			s.sendStatus(wire.StatusInternalError)
			return
		}
		s.sendStatus(wire.StatusOk)
	case wire.NvsDelete:
		if req.Namespace == "" || req.Key == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		err := s.settings.Delete(req.Namespace, req.Key)
		switch {
		case errors.Is(err, settings.ErrNotFound):
			s.sendStatus(wire.StatusNotFound)
		case err != nil:
			s.logger.Error("settings delete failed", "namespace", req.Namespace, "key", req.Key, "error", err)
			s.sendStatus(wire.StatusInternalError)
		default:
			s.sendStatus(wire.StatusOk)
		}
	default:
		s.sendStatus(wire.StatusNotSupported)
	}
}

func (s *Session) listSettings(namespace string, offset, limit uint32) ([]wire.SettingsEntry, uint32, error) {
	entries, total, err := s.settings.List(namespace, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]wire.SettingsEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, wire.SettingsEntry{Namespace: e.Namespace, Key: e.Key, Type: e.Type})
	}
	return out, total, nil
}

// --- application-image store ---

func (s *Session) handleAppStoreAction(req wire.AppStoreRequest) {
	switch req.Action {
	case wire.AppStoreList:
		entries, total := s.listAppStore(req.Offset, listPageCapacity)
		s.sendResponse(wire.StatusOk, &wire.AppListPayload{Entries: entries, Total: total})
	case wire.AppStoreDelete:
		if req.Slug == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		err := s.appstore.Delete(req.Slug)
		switch {
		case errors.Is(err, appstore.ErrNotFound):
			s.sendStatus(wire.StatusNotFound)
		case err != nil:
			s.logger.Error("app-store delete failed", "slug", req.Slug, "error", err)
			s.sendStatus(wire.StatusInternalError)
		default:
			s.sendStatus(wire.StatusOk)
		}
	case wire.AppStoreUpload:
		if req.Slug == "" || req.Title == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		err := s.transfer.StartAppStoreUpload(req.Slug, req.Title, req.Version, req.Size, req.Crc32)
		switch {
		case errors.Is(err, appstore.ErrExists):
			s.sendStatus(wire.StatusExists)
		case errors.Is(err, appstore.ErrNoSpace):
			s.sendStatus(wire.StatusNoSpace)
		case err != nil:
			s.logger.Error("app-store upload-start failed", "slug", req.Slug, "error", err)
			s.sendStatus(wire.StatusInternalError)
		default:
			s.sendStatus(wire.StatusOk)
		}
	case wire.AppStoreDownload:
		if req.Slug == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		size, crc, err := s.transfer.StartAppStoreDownload(req.Slug)
		switch {
		case errors.Is(err, appstore.ErrNotFound):
			s.sendStatus(wire.StatusNotFound)
		case err != nil:
			s.logger.Error("app-store download-start failed", "slug", req.Slug, "error", err)
			s.sendStatus(wire.StatusInternalError)
		default:
			s.sendResponse(wire.StatusOk, &wire.DownloadChunkPayload{Size: size, Crc32: crc})
		}
	case wire.AppStoreStat:
		if req.Slug == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		h, err := s.appstore.Open(req.Slug)
		if errors.Is(err, appstore.ErrNotFound) {
			s.sendStatus(wire.StatusNotFound)
			return
		}
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		entry, err := s.appstore.EntryInfo(h)
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		s.sendResponse(wire.StatusOk, &wire.MetadataPayload{
			Slug: entry.Slug, Title: entry.Title, Version: entry.Version, Size: entry.Size,
		})
	case wire.AppStoreCrc32:
		if req.Slug == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		h, err := s.appstore.Open(req.Slug)
		if errors.Is(err, appstore.ErrNotFound) {
			s.sendStatus(wire.StatusNotFound)
			return
		}
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		entry, err := s.appstore.EntryInfo(h)
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		crc, err := transfer.CRC32AppStore(s.appstore, h, entry.Size)
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		s.sendResponse(wire.StatusOk, &wire.Crc32Payload{Crc32: crc})
	case wire.AppStoreUsage:
		total, err := s.appstore.TotalBytes()
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		free, err := s.appstore.FreeBytes()
		if err != nil {
			s.sendStatus(wire.StatusInternalError)
			return
		}
		s.sendResponse(wire.StatusOk, &wire.UsagePayload{Total: total, Free: free})
	default:
		s.sendStatus(wire.StatusNotSupported)
	}
}

func (s *Session) listAppStore(offset, limit uint32) ([]wire.AppEntry, uint32) {
	var entries []wire.AppEntry
	var total uint32
	var prev appstore.Handle
	for {
		h, err := s.appstore.NextEntry(prev)
		if err != nil || h == nil {
			break
		}
		entry, err := s.appstore.EntryInfo(h)
		if err != nil {
			break
		}
		if total >= offset && uint32(len(entries)) < limit {
			entries = append(entries, wire.AppEntry{
				Slug: entry.Slug, Title: entry.Title, Version: entry.Version, Size: entry.Size,
			})
		}
		total++
		prev = h
	}
	return entries, total
}

// --- filesystem ---

func (s *Session) handleFsAction(req wire.FsRequest) {
	switch req.Action {
	case wire.FsList:
		entries, total, err := s.fsstore.List(req.Path, req.Offset, listPageCapacity)
		if err != nil {
			s.sendStatus(fsStatus(err))
			return
		}
		out := make([]wire.FsEntry, 0, len(entries))
		for _, e := range entries {
			out = append(out, wire.FsEntry{Name: e.Name, IsDir: e.IsDir, Size: e.Size})
		}
		s.sendResponse(wire.StatusOk, &wire.FsListPayload{Entries: out, Total: total})
	case wire.FsDelete:
		if req.Path == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		if err := s.fsstore.Unlink(req.Path); err != nil {
			s.sendStatus(fsStatus(err))
			return
		}
		s.sendStatus(wire.StatusOk)
	case wire.FsMkdir:
		if req.Path == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		if err := s.fsstore.Mkdir(req.Path); err != nil {
			s.sendStatus(fsStatus(err))
			return
		}
		s.sendStatus(wire.StatusOk)
	case wire.FsRmdir:
		if req.Path == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		if err := s.fsstore.Rmdir(req.Path); err != nil {
			// Reports ENOTDIR as IsFile for wire compatibility with
			// how the host distinguishes "that's a file" from other
			// rmdir failures; kept here deliberately.
			if errors.Is(err, fsstore.ErrNotDir) {
				s.sendStatus(wire.StatusIsFile)
				return
			}
			s.sendStatus(fsStatus(err))
			return
		}
		s.sendStatus(wire.StatusOk)
	case wire.FsStat:
		if req.Path == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		entry, err := s.fsstore.Stat(req.Path)
		if err != nil {
			s.sendStatus(fsStatus(err))
			return
		}
		s.sendResponse(wire.StatusOk, &wire.MetadataPayload{Path: req.Path, Size: entry.Size, IsDir: entry.IsDir})
	case wire.FsUpload:
		if req.Path == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		if err := s.transfer.StartFsUpload(req.Path, req.Size, req.Crc32); err != nil {
			s.sendStatus(fsStatus(err))
			return
		}
		s.sendStatus(wire.StatusOk)
	case wire.FsDownload:
		if req.Path == "" {
			s.sendStatus(wire.StatusMalformed)
			return
		}
		size, crc, err := s.transfer.StartFsDownload(req.Path)
		if err != nil {
			s.sendStatus(fsStatus(err))
			return
		}
		s.sendResponse(wire.StatusOk, &wire.DownloadChunkPayload{Size: size, Crc32: crc})
	default:
		s.sendStatus(wire.StatusNotSupported)
	}
}

func fsStatus(err error) wire.StatusCode {
	switch {
	case errors.Is(err, fsstore.ErrNotFound):
		return wire.StatusNotFound
	case errors.Is(err, fsstore.ErrExists):
		return wire.StatusExists
	case errors.Is(err, fsstore.ErrIsDir):
		return wire.StatusIsDir
	case errors.Is(err, fsstore.ErrNotDir):
		return wire.StatusIsFile
	case errors.Is(err, fsstore.ErrNotEmpty):
		return wire.StatusNotEmpty
	default:
		return wire.StatusInternalError
	}
}

// --- transfer control ---

func (s *Session) handleUploadChunk(req wire.UploadChunkRequest) {
	if err := s.transfer.HandleUploadChunk(req.Position, req.Data); err != nil {
		if errors.Is(err, transfer.ErrIllegalState) {
			s.sendStatus(wire.StatusIllegalState)
			return
		}
		s.logger.Error("upload chunk write failed", "error", err)
		s.sendStatus(wire.StatusInternalError)
		return
	}
	s.metrics.RecordTransferBytes("upload", len(req.Data))
	s.sendStatus(wire.StatusOk)
}

func (s *Session) handleXferCtrl(req wire.XferCtrlRequest) {
	switch req.Ctrl {
	case wire.XferAbort:
		s.transfer.Abort()
		// No response to the abort itself.
	case wire.XferFinish:
		result, err := s.transfer.Finish()
		switch {
		case err != nil:
			s.logger.Error("transfer finish failed", "error", err)
			s.sendStatus(wire.StatusInternalError)
		case result.CRCMismatch:
			s.sendStatus(wire.StatusInternalError)
		case result.IllegalFinish:
			s.sendStatus(wire.StatusIllegalState)
		default:
			s.sendStatus(wire.StatusOk)
		}
	case wire.XferContinue:
		active, _, direction := s.transfer.Active()
		if !active || direction != transfer.DirDownload {
			s.transfer.Abort()
			s.sendStatus(wire.StatusIllegalState)
			return
		}
		data, err := s.transfer.Continue()
		if err != nil {
			s.logger.Error("transfer continue failed", "error", err)
			s.sendStatus(wire.StatusInternalError)
			return
		}
		s.metrics.RecordTransferBytes("download", len(data))
		s.sendResponse(wire.StatusOk, &wire.DownloadChunkPayload{Data: data})
	default:
		s.sendStatus(wire.StatusNotSupported)
	}
}
