package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/moinsen-dev/tauri-plugin-mcp/internal/host"
)

// Storage inspector sub-actions, matching the wire protocol.
const (
	storageActionGet            = "get_storage"
	storageActionClear          = "clear_storage"
	storageActionListIndexedDB  = "list_indexeddb"
	storageActionQueryIndexedDB = "query_indexeddb"
)

type storageInspectorParams struct {
	WindowLabel string `json:"window_label,omitempty"`
	Action      string `json:"action"`
	StorageType string `json:"storage_type,omitempty"` // localStorage or sessionStorage
	KeyPattern  string `json:"key_pattern,omitempty"`
	Page        int    `json:"page,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
	DBName      string `json:"db_name,omitempty"`
	StoreName   string `json:"store_name,omitempty"`
}

func (t *toolset) storageInspector(ctx context.Context, params json.RawMessage) (any, error) {
	var p storageInspectorParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var code string
	switch p.Action {
	case storageActionGet:
		store, err := webStorageName(p.StorageType)
		if err != nil {
			return nil, err
		}
		pageSize := p.PageSize
		if pageSize <= 0 {
			pageSize = 50
		}
		code = buildGetStorageScript(store, p.KeyPattern, p.Page, pageSize)
	case storageActionClear:
		store, err := webStorageName(p.StorageType)
		if err != nil {
			return nil, err
		}
		code = fmt.Sprintf(`(() => { const n = %s.length; %s.clear(); return { cleared: true, storage_type: %s, removed_items: n }; })()`,
			store, store, jsString(store))
	case storageActionListIndexedDB:
		code = buildListIndexedDBScript()
	case storageActionQueryIndexedDB:
		if p.DBName == "" || p.StoreName == "" {
			return nil, host.Validationf("db_name and store_name are required for query_indexeddb")
		}
		code = buildQueryIndexedDBScript(p.DBName, p.StoreName, p.KeyPattern)
	case "":
		return nil, host.Validationf("storage_inspector requires an action")
	default:
		return nil, host.Validationf("unsupported storage inspector action %q", p.Action)
	}

	result, err := t.deps.Host.ExecuteJS(ctx, code)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(result)) {
		return nil, host.NewError(host.CodeEvalFailure, "storage inspector returned malformed data", nil)
	}
	return json.RawMessage(result), nil
}

// webStorageName maps the wire storage_type to the in-page global.
func webStorageName(storageType string) (string, error) {
	switch storageType {
	case "localStorage", "localstorage":
		return "localStorage", nil
	case "sessionStorage", "sessionstorage":
		return "sessionStorage", nil
	case "":
		return "", host.Validationf("storage_type is required for this action")
	default:
		return "", host.Validationf("unsupported storage type %q", storageType)
	}
}

func buildGetStorageScript(store, keyPattern string, page, pageSize int) string {
	return fmt.Sprintf(`(() => {
const pattern = %s;
let matches = (k) => true;
if (pattern) {
  try { const re = new RegExp(pattern, 'i'); matches = (k) => re.test(k); }
  catch (e) { const lower = pattern.toLowerCase(); matches = (k) => k.toLowerCase().includes(lower); }
}
const items = [];
let totalBytes = 0;
for (let i = 0; i < %s.length; i++) {
  const key = %s.key(i);
  if (!matches(key)) continue;
  const raw = %s.getItem(key);
  let value = raw;
  try { value = JSON.parse(raw); } catch (e) {}
  items.push({ key: key, value: value, size_bytes: key.length + (raw ? raw.length : 0) });
  totalBytes += key.length + (raw ? raw.length : 0);
}
items.sort((a, b) => a.key.localeCompare(b.key));
const page = %d;
const pageSize = %d;
return {
  storage_type: %s,
  items: items.slice(page * pageSize, (page + 1) * pageSize),
  total_items: items.length,
  total_size_bytes: totalBytes,
  paginated: items.length > pageSize,
  page: page,
  page_size: pageSize
};
})()`, jsString(keyPattern), store, store, store, page, pageSize, jsString(store))
}

func buildListIndexedDBScript() string {
	return `(async () => {
if (!window.indexedDB || !indexedDB.databases) {
  return { databases: [], available: false, reason: 'indexedDB.databases API not available' };
}
const dbs = await indexedDB.databases();
const databases = [];
for (const info of dbs) {
  try {
    const db = await new Promise((resolve, reject) => {
      const req = indexedDB.open(info.name);
      req.onsuccess = () => resolve(req.result);
      req.onerror = () => reject(req.error);
    });
    databases.push({
      name: db.name,
      version: db.version,
      stores: Array.from(db.objectStoreNames)
    });
    db.close();
  } catch (e) {
    databases.push({ name: info.name, version: info.version || 0, stores: [], error: String(e) });
  }
}
return { databases: databases, available: true };
})()`
}

func buildQueryIndexedDBScript(dbName, storeName, keyPattern string) string {
	return fmt.Sprintf(`(async () => {
const db = await new Promise((resolve, reject) => {
  const req = indexedDB.open(%s);
  req.onsuccess = () => resolve(req.result);
  req.onerror = () => reject(req.error);
});
try {
  if (!db.objectStoreNames.contains(%s)) {
    return { error: 'object store not found: ' + %s };
  }
  const pattern = %s;
  let matches = (k) => true;
  if (pattern) {
    try { const re = new RegExp(pattern, 'i'); matches = (k) => re.test(String(k)); }
    catch (e) { const lower = pattern.toLowerCase(); matches = (k) => String(k).toLowerCase().includes(lower); }
  }
  const items = await new Promise((resolve, reject) => {
    const out = [];
    const cursorReq = db.transaction(%s, 'readonly').objectStore(%s).openCursor();
    cursorReq.onsuccess = () => {
      const cursor = cursorReq.result;
      if (!cursor) { resolve(out); return; }
      if (matches(cursor.key)) {
        const raw = JSON.stringify(cursor.value);
        out.push({ key: String(cursor.key), value: cursor.value, size_bytes: raw ? raw.length : 0 });
      }
      cursor.continue();
    };
    cursorReq.onerror = () => reject(cursorReq.error);
  });
  return {
    db_name: %s,
    store_name: %s,
    items: items.slice(0, 100),
    total_items: items.length,
    total_size_bytes: items.reduce((sum, i) => sum + i.size_bytes, 0)
  };
} finally {
  db.close();
}
})()`, jsString(dbName), jsString(storeName), jsString(storeName), jsString(keyPattern),
		jsString(storeName), jsString(storeName), jsString(dbName), jsString(storeName))
}

// Local storage management sub-actions.
const (
	localStorageGet    = "get"
	localStorageSet    = "set"
	localStorageRemove = "remove"
	localStorageClear  = "clear"
	localStorageGetAll = "get_all"
)

type manageLocalStorageParams struct {
	WindowLabel string          `json:"window_label,omitempty"`
	Action      string          `json:"action"`
	Key         string          `json:"key,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
}

func (t *toolset) manageLocalStorage(ctx context.Context, params json.RawMessage) (any, error) {
	var p manageLocalStorageParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	var code string
	switch p.Action {
	case localStorageGet:
		if p.Key == "" {
			return nil, host.Validationf("key is required for get")
		}
		code = fmt.Sprintf(`(() => {
const raw = localStorage.getItem(%s);
let value = raw;
try { value = JSON.parse(raw); } catch (e) {}
return { key: %s, value: value, exists: raw !== null };
})()`, jsString(p.Key), jsString(p.Key))
	case localStorageSet:
		if p.Key == "" {
			return nil, host.Validationf("key is required for set")
		}
		if len(p.Value) == 0 {
			return nil, host.Validationf("value is required for set")
		}
		// Strings are stored bare; everything else as serialized JSON.
		stored := string(p.Value)
		var asString string
		if err := json.Unmarshal(p.Value, &asString); err == nil {
			stored = asString
		}
		code = fmt.Sprintf(`(() => { localStorage.setItem(%s, %s); return { key: %s, stored: true }; })()`,
			jsString(p.Key), jsString(stored), jsString(p.Key))
	case localStorageRemove:
		if p.Key == "" {
			return nil, host.Validationf("key is required for remove")
		}
		code = fmt.Sprintf(`(() => {
const existed = localStorage.getItem(%s) !== null;
localStorage.removeItem(%s);
return { key: %s, removed: existed };
})()`, jsString(p.Key), jsString(p.Key), jsString(p.Key))
	case localStorageClear:
		code = `(() => { const n = localStorage.length; localStorage.clear(); return { cleared: true, removed_items: n }; })()`
	case localStorageGetAll:
		code = `(() => {
const items = {};
for (let i = 0; i < localStorage.length; i++) {
  const key = localStorage.key(i);
  const raw = localStorage.getItem(key);
  let value = raw;
  try { value = JSON.parse(raw); } catch (e) {}
  items[key] = value;
}
return { items: items, total_items: localStorage.length };
})()`
	case "":
		return nil, host.Validationf("manage_local_storage requires an action")
	default:
		return nil, host.Validationf("unsupported local storage action %q", p.Action)
	}

	result, err := t.deps.Host.ExecuteJS(ctx, code)
	if err != nil {
		return nil, err
	}
	if !json.Valid([]byte(result)) {
		return nil, host.NewError(host.CodeEvalFailure, "local storage returned malformed data", nil)
	}
	return json.RawMessage(result), nil
}
